package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"calmigrate/internal/caldav"
	"calmigrate/internal/config"
	"calmigrate/internal/exporter"
	"calmigrate/internal/gam"
	"calmigrate/internal/gcal"
	"calmigrate/internal/msgraph"
	"calmigrate/internal/replayer"
	"calmigrate/internal/transformer"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "calmigrate",
		Usage: "Migrate Microsoft 365 calendar events into a Google Workspace calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: config.DefaultFile, Usage: "Path to the TOML configuration file."},
		},
		Commands: []*cli.Command{
			exportCommand(),
			transformCommand(),
			replayCommand(),
			runCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export all calendar events for a user from Microsoft 365 to a JSON file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true, Usage: "Source user email address."},
			&cli.StringFlag{Name: "output", Usage: "Output JSON path. Defaults to <work_dir>/<local>_events.json."},
			&cli.BoolFlag{Name: "pretty", Usage: "Indent the JSON output for readability."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if err := cfg.ValidateExport(); err != nil {
				return err
			}

			user := c.String("user")
			out := c.String("output")
			if out == "" {
				out, _ = artifactPaths(cfg.WorkDir, user)
			}

			client := msgraph.NewClient(c.Context, logger, cfg.TenantID, cfg.ClientID, cfg.ClientSecret)
			_, err = exporter.New(client, logger).Export(c.Context, user, out, c.Bool("pretty"))
			return err
		},
	}
}

func transformCommand() *cli.Command {
	return &cli.Command{
		Name:  "transform",
		Usage: "Flatten an exported JSON file into the tabular CSV the replayer consumes.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Required: true, Usage: "Exported JSON path."},
			&cli.StringFlag{Name: "output", Usage: "Output CSV path. Defaults to the input path with a .csv extension."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))

			in := c.String("input")
			out := c.String("output")
			if out == "" {
				out = strings.TrimSuffix(in, filepath.Ext(in)) + ".csv"
			}

			_, err := transformer.New(logger).Transform(in, out)
			return err
		},
	}
}

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "Create one destination event per CSV row, skipping cancelled and untitled events.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Required: true, Usage: "Tabular CSV path."},
			&cli.StringFlag{Name: "user", Required: true, Usage: "Source user email; the destination mailbox is derived from it."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Construct every creation call but execute none."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if err := cfg.ValidateReplay(); err != nil {
				return err
			}

			mailbox := replayer.DestinationMailbox(c.String("user"), cfg.DestinationDomain)
			creator, err := newCreator(c.Context, logger, cfg, mailbox)
			if err != nil {
				return err
			}

			dryRun := c.Bool("dry-run")
			if dryRun {
				logger.Info("Performing a dry run. No events will be created.")
			}
			_, err = replayer.New(creator, logger, dryRun).Replay(c.Context, c.String("input"), mailbox)
			return err
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the whole pipeline: export, transform, replay.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "Source user email. Prompted for when omitted."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Construct every creation call but execute none."},
			&cli.BoolFlag{Name: "pretty", Usage: "Indent the intermediate JSON for readability."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if err := cfg.ValidateExport(); err != nil {
				return err
			}
			if err := cfg.ValidateReplay(); err != nil {
				return err
			}

			user := c.String("user")
			if user == "" {
				fmt.Print("Enter the source user email: ")
				reader := bufio.NewReader(os.Stdin)
				user, _ = reader.ReadString('\n')
				user = strings.TrimSpace(user)
			}
			if user == "" {
				return fmt.Errorf("a source user email is required")
			}

			dryRun := c.Bool("dry-run")
			if dryRun {
				logger.Info("Performing a dry run. No events will be created.")
			}

			jsonPath, csvPath := artifactPaths(cfg.WorkDir, user)

			client := msgraph.NewClient(c.Context, logger, cfg.TenantID, cfg.ClientID, cfg.ClientSecret)
			if _, err := exporter.New(client, logger).Export(c.Context, user, jsonPath, c.Bool("pretty")); err != nil {
				return err
			}
			if _, err := transformer.New(logger).Transform(jsonPath, csvPath); err != nil {
				return err
			}

			mailbox := replayer.DestinationMailbox(user, cfg.DestinationDomain)
			creator, err := newCreator(c.Context, logger, cfg, mailbox)
			if err != nil {
				return err
			}
			_, err = replayer.New(creator, logger, dryRun).Replay(c.Context, csvPath, mailbox)
			return err
		},
	}
}

// newCreator builds the destination backend the config selects. Keys are
// already validated by ValidateReplay.
func newCreator(ctx context.Context, logger *slog.Logger, cfg *config.Config, mailbox string) (replayer.Creator, error) {
	switch cfg.Destination {
	case "gam":
		return gam.NewRunner(cfg.GAMPath, logger), nil
	case "gcal":
		return gcal.NewCreator(ctx, logger, cfg.GCal.ServiceAccountFile, mailbox)
	case "caldav":
		return caldav.NewCreator(ctx, logger, cfg.CalDAV.Endpoint, cfg.CalDAV.Username, cfg.CalDAV.Password, cfg.CalDAV.CalendarName, mailbox)
	default:
		return nil, fmt.Errorf("unknown destination %q", cfg.Destination)
	}
}

// artifactPaths names the intermediate files after the user's local part.
func artifactPaths(workDir, userEmail string) (jsonPath, csvPath string) {
	local, _, _ := strings.Cut(userEmail, "@")
	return filepath.Join(workDir, local+"_events.json"), filepath.Join(workDir, local+"_events.csv")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
