package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ignite/adinsight/internal/app"
	"github.com/ignite/adinsight/internal/config"
)

// withApp loads config, wires the engine, runs fn and cleans up.
func withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
