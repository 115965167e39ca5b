package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"

	"tbr/state"
)

func runRecent(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	db, err := openStore(env)
	if err != nil {
		return fmt.Errorf("unable to open state database: %w", err)
	}
	defer func() {
		if er := db.Close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close state database: %w", er))
		}
	}()

	books, err := db.RecentBooks(int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("unable to list recent books: %w", err)
	}
	if len(books) == 0 {
		fmt.Fprintln(os.Stdout, "no books opened yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OPENED\tTITLE\tPOSITION\tFILE")
	for _, b := range books {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Opened.Format("2006-01-02 15:04"), b.Title, b.Pos, b.Path)
	}
	return w.Flush()
}
