package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/layer-3/credgate/internal/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := newApp(cfg).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newApp builds the CLI. Global flags fall back to the CREDGATE_* environment,
// then to the loaded configuration.
func newApp(cfg *config.Client) *cli.App {
	return &cli.App{
		Name:     "credgate",
		Usage:    "raise, answer and inspect credential access requests",
		Version:  "v0.1.0",
		Compiled: time.Now(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "backend",
				Value:   cfg.BackendURL,
				EnvVars: []string{"CREDGATE_BACKEND_URL"},
				Usage:   "backend base URL",
			},
			&cli.StringFlag{
				Name:    "key",
				EnvVars: []string{"CREDGATE_PRIVATE_KEY"},
				Usage:   "hex secp256k1 private key of the wallet",
			},
			&cli.StringFlag{
				Name:    "session-file",
				Value:   cfg.SessionFile,
				EnvVars: []string{"CREDGATE_SESSION_FILE"},
				Usage:   "where session tokens are kept between runs",
			},
			&cli.StringFlag{
				Name:  "output",
				Value: "yaml",
				Usage: "result format: yaml or json",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			level := slog.LevelWarn
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, true)))
			return nil
		},
		Commands: commands(cfg),
	}
}
