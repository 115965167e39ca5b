package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"tbr/book"
	"tbr/common"
	"tbr/config"
	"tbr/images"
	"tbr/layout"
	"tbr/session"
	"tbr/state"
	"tbr/store"
)

func runDump(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	doc, path, err := openBook(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if er := doc.Close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close book: %w", er))
		}
	}()

	out := os.Stdout
	if fname := cmd.Args().Get(1); len(fname) > 0 {
		if fi, er := os.Stat(fname); er == nil && fi.IsDir() {
			// derive the output name from the book title
			fname = filepath.Join(fname, config.CleanFileName(doc.Title)+".txt")
		}
		out, err = os.Create(fname)
		if err != nil {
			return fmt.Errorf("unable to create destination file '%s': %w", fname, err)
		}
		defer out.Close()
	}

	db, err := openStore(env)
	if err != nil {
		return fmt.Errorf("unable to open state database: %w", err)
	}
	defer func() {
		if er := db.Close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close state database: %w", er))
		}
	}()
	key := store.BookKey(path)

	start := book.Position{}
	if ch := int(cmd.Int("chapter")); ch >= 0 {
		start = doc.Start(ch)
	} else if cmd.Bool("resume") {
		if saved, found, er := db.LoadReading(key); er != nil {
			env.Log.Warn("Unable to load saved position", zap.Error(er))
		} else if found {
			start = saved
		}
	}

	vp := viewport(cmd, env.Cfg)
	orient := orientation(env)
	theme := layout.ThemeByName(env.Cfg.Reading.Theme)
	pag := layout.NewPaginator(doc, layout.CellMetrics{}, theme, vp, orient, env.Cfg.Reading.LeadingSpace, env.Log)
	pag.SetImageSizer(images.CellSizer{Lookup: imageLookup(doc, env.Log)})
	sess := session.New(doc, start, env.Cfg.Reading.HistorySize, env.Cfg.Reading.LinkWrap, env.Log)

	env.Log.Info("Dumping book",
		zap.String("file", path),
		zap.String("viewport", vp.Signature()),
		zap.Stringer("orientation", orient),
		zap.Stringer("start", sess.Position()))

	var (
		pages    int
		maxPages = int(cmd.Int("pages"))
		single   = int(cmd.Int("chapter"))
	)
	for {
		page, er := pag.PaginateFrom(ctx, sess.Position())
		if er != nil {
			return fmt.Errorf("pagination failed at %s: %w", sess.Position(), er)
		}
		if er := renderPage(out, &page, vp, orient); er != nil {
			return fmt.Errorf("unable to write page: %w", er)
		}
		pages++

		done := page.EndOfChapter && (page.End.Chapter >= doc.ChapterCount() || single >= 0)
		if done || (maxPages > 0 && pages >= maxPages) {
			sess.Move(page.Start)
			break
		}
		sess.Move(page.End)
	}

	if err := db.SaveReading(key, path, doc.Title, sess.Position()); err != nil {
		return fmt.Errorf("unable to save reading position: %w", err)
	}
	if err := db.AppendHistory(key, sess.Position()); err != nil {
		return fmt.Errorf("unable to record history: %w", err)
	}
	env.Log.Info("Dump finished", zap.Int("pages", pages), zap.Stringer("position", sess.Position()))
	return nil
}

// imageLookup decodes embedded illustrations on demand, caching results so
// repagination does not decode the same image twice. Dead references and
// undecodable data degrade to a single placeholder line.
func imageLookup(doc *book.Document, log *zap.Logger) func(id string) *images.Image {
	cache := make(map[string]*images.Image)
	return func(id string) *images.Image {
		if img, ok := cache[id]; ok {
			return img
		}
		var img *images.Image
		if data, err := doc.Image(id); err != nil {
			log.Debug("Image is not readable", zap.String("id", id), zap.Error(err))
		} else if img, err = images.Decode(id, data); err != nil {
			log.Debug("Image is not decodable", zap.String("id", id), zap.Error(err))
			img = nil
		}
		cache[id] = img
		return img
	}
}

// renderPage writes one page as plain text. Horizontal pages come out line
// by line; vertical pages are rasterized into a cell grid so columns read
// top-to-bottom, right-to-left the way they would on screen.
func renderPage(w io.Writer, page *layout.Page, vp layout.Viewport, o common.Orientation) error {
	if o == common.OrientationVertical {
		return renderVertical(w, page, vp)
	}
	var sb strings.Builder
	for _, line := range page.Lines {
		if line.Indent > 0 {
			sb.WriteString(strings.Repeat(" ", line.Indent))
		}
		switch {
		case line.Divider:
			sb.WriteString(strings.Repeat("-", vp.Width))
		case line.Image:
			fmt.Fprintf(&sb, "[image: %s]", line.Fragments[0].ImageID)
		default:
			for _, f := range line.Fragments {
				sb.WriteString(f.Text)
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(strings.Repeat("=", vp.Width))
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

func renderVertical(w io.Writer, page *layout.Page, vp layout.Viewport) error {
	grid := make([][]rune, vp.Height)
	for i := range grid {
		grid[i] = make([]rune, 0, len(page.Lines))
	}
	// column 0 is the rightmost, rows grow left in the output
	for _, line := range page.Lines {
		row := line.Indent
		if row > vp.Height {
			row = vp.Height
		}
		for i := 0; i < row; i++ {
			grid[i] = append(grid[i], '　')
		}
		for _, f := range line.Fragments {
			for _, cl := range strings.Split(f.Text, "") {
				if row >= vp.Height {
					break
				}
				grid[row] = append(grid[row], []rune(cl)[0])
				row++
			}
		}
		for ; row < vp.Height; row++ {
			grid[row] = append(grid[row], '　')
		}
	}
	var sb strings.Builder
	for _, cells := range grid {
		// reverse so the first laid out column lands on the right
		for i := len(cells) - 1; i >= 0; i-- {
			sb.WriteRune(cells[i])
			if i > 0 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(strings.Repeat("=", vp.Width))
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}
