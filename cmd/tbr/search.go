package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"tbr/book"
	"tbr/search"
	"tbr/state"
)

func runSearch(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	if cmd.Args().Len() < 2 {
		return fmt.Errorf("expecting book file and pattern")
	}
	pattern := cmd.Args().Get(1)

	doc, path, err := openBook(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if er := doc.Close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close book: %w", er))
		}
	}()

	query := search.Query{
		Pattern:       pattern,
		Mode:          search.ModeSubstring,
		CaseSensitive: cmd.Bool("case"),
		WholeWord:     cmd.Bool("word"),
		Language:      env.Cfg.Search.SnippetLanguage,
	}
	if cmd.Bool("regex") {
		query.Mode = search.ModeRegex
	}
	from := book.Position{}
	if cmd.Bool("backward") {
		query.Direction = search.Backward
		from = book.Position{Chapter: doc.ChapterCount() - 1, Block: 1 << 30}
	}

	worker := search.NewWorker(doc, env.Log)
	defer worker.Close()

	gen, err := worker.Start(ctx, query, from)
	if err != nil {
		return fmt.Errorf("unable to start search: %w", err)
	}
	env.Log.Debug("Search started", zap.String("file", path), zap.String("pattern", pattern), zap.Uint64("gen", gen))

	var (
		found int
		limit = int(cmd.Int("limit"))
	)
	for res := range worker.Results() {
		if res.Gen != gen {
			continue
		}
		if res.Err != nil {
			return fmt.Errorf("search failed: %w", res.Err)
		}
		if res.Done {
			break
		}
		found++
		fmt.Fprintf(os.Stdout, "%s: %s\n", res.Match.Pos, res.Match.Snippet)
		if limit > 0 && found >= limit {
			worker.Cancel()
			break
		}
	}

	env.Log.Info("Search finished", zap.String("pattern", pattern), zap.Int("matches", found))
	if found == 0 {
		fmt.Fprintln(os.Stdout, "no matches")
	}
	return nil
}
