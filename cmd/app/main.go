package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/rallylog/internal"
	pkgconfig "github.com/starford/rallylog/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func reindex(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := internal.Reindex(ctx, cmd.Bool("force"), internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	return printJSON(st)
}

func query(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	res, err := internal.Query(ctx, internal.QueryRequest{
		Mode:  cmd.String("mode"),
		Text:  strings.Join(cmd.Args().Slice(), " "),
		Scene: cmd.String("scene"),
		Limit: int(cmd.Int("limit")),
	}, internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return printJSON(res)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	cmd := &cli.Command{
		Name:   "rallylog",
		Usage:  "Tennis practice journal with hybrid keyword and vector retrieval",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: mcp,
			},
			{
				Name:   "reindex",
				Usage:  "Embed records whose vectors are missing or stale",
				Action: reindex,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Re-embed every record",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Run a retrieval query and print the result as JSON",
				ArgsUsage: "<text>",
				Action:    query,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "similar, recent, related or sensation",
						Value: internal.QueryRelated,
					},
					&cli.StringFlag{
						Name:  "scene",
						Usage: "Restrict to one scene",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum records (0 selects the default)",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
