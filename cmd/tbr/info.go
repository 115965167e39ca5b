package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"tbr/state"
	"tbr/utils/outline"
)

func runInfo(ctx context.Context, cmd *cli.Command) (err error) {
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

	env.Log.Info("Book opened", zap.String("file", path), zap.String("format", doc.Format.String()), zap.Int("chapters", doc.ChapterCount()))

	fmt.Fprintf(os.Stdout, "Title:    %s\n", doc.Title)
	fmt.Fprintf(os.Stdout, "Format:   %s\n", doc.Format)
	fmt.Fprintf(os.Stdout, "Chapters: %d\n", doc.ChapterCount())

	toc := doc.TOC()
	if len(toc) > 0 {
		fmt.Fprintln(os.Stdout, "Contents:")
		for _, e := range toc {
			title := e.Title
			if len(title) == 0 {
				title = fmt.Sprintf("(chapter %d)", e.Pos.Chapter+1)
			}
			fmt.Fprintf(os.Stdout, "  %s%s [%s]\n", strings.Repeat("  ", e.Level), title, e.Pos)
		}
	}

	if cmd.Bool("outline") {
		tree, er := outline.Document(doc)
		if er != nil {
			return fmt.Errorf("unable to outline book: %w", er)
		}
		fmt.Fprint(os.Stdout, tree)
	}
	return nil
}
