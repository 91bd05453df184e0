// Command gate-check runs contact ids through the contactability gate and
// prints a compliance report. It exits non-zero when any contact does not
// match the expected outcome.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/outreach-core/internal/app"
	"github.com/ignite/outreach-core/internal/config"
)

// appLoader builds the wired services from a config path.
type appLoader func(ctx context.Context, configPath string) (*app.App, error)

func loadApp(ctx context.Context, configPath string) (*app.App, error) {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(ctx, cfg)
}

func main() {
	if err := newRootCmd(loadApp, os.Stdout).Execute(); err != nil {
		if !errors.Is(err, errChecksFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd(load appLoader, out io.Writer) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "gate-check",
		Short: "Verify contactability decisions against the live store",
		Long: `gate-check evaluates contacts with the same gate the API and the
escalation worker use. Reads DATABASE_URL and the YAML config like the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", envOrDefault("CONFIG_PATH", "config/config.yaml"), "path to the YAML config")

	withApp := func(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := load(ctx, configPath)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a)
	}

	rootCmd.AddCommand(evaluateCmd(withApp))
	rootCmd.AddCommand(routeCmd(withApp))
	return rootCmd
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
