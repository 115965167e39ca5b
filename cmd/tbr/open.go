package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	cli "github.com/urfave/cli/v3"

	"tbr/book"
	"tbr/common"
	"tbr/config"
	"tbr/layout"
	"tbr/misc"
	"tbr/state"
	"tbr/store"
)

// openBook loads the book named by the first positional argument applying
// the session wide archive options.
func openBook(ctx context.Context, cmd *cli.Command) (*book.Document, string, error) {
	env := state.EnvFromContext(ctx)

	path := cmd.Args().Get(0)
	if len(path) == 0 {
		return nil, "", fmt.Errorf("no book file specified")
	}
	opt := &book.OpenOptions{
		CodePage: env.CodePage,
		Index:    int(cmd.Int("index")),
	}
	doc, err := book.Open(path, opt, env.Log)
	if err != nil {
		return nil, "", fmt.Errorf("unable to open book '%s': %w", path, err)
	}
	return doc, path, nil
}

// viewport resolves the layout target: command line first, configuration
// next, falling back to a classic terminal.
func viewport(cmd *cli.Command, cfg *config.Config) layout.Viewport {
	v := layout.Viewport{Width: cfg.Viewport.Width, Height: cfg.Viewport.Height}
	if w := int(cmd.Int("width")); w > 0 {
		v.Width = w
	}
	if h := int(cmd.Int("height")); h > 0 {
		v.Height = h
	}
	if v.Width <= 0 {
		v.Width = 80
	}
	if v.Height <= 0 {
		v.Height = 24
	}
	return v
}

func orientation(env *state.LocalEnv) common.Orientation {
	if env.Vertical {
		return common.OrientationVertical
	}
	return env.Cfg.Orientation()
}

// openStore opens the state database at the configured location, defaulting
// to the user configuration directory.
func openStore(env *state.LocalEnv) (*store.Store, error) {
	dir := env.Cfg.Storage.Path
	if len(dir) == 0 {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("unable to locate user configuration directory: %w", err)
		}
		dir = filepath.Join(base, misc.GetAppName())
	}
	return store.Open(dir, env.Log)
}
