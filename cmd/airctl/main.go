// Command airctl is the Almaty Air operations CLI.
//
// Usage:
//
//	airctl migrate
//	airctl fetch
//	airctl fetch --json
//	airctl run digest --at 08:00 --dry-run
//	airctl run alerts
//	airctl purge --older-than 720h
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/almaty-air/internal/airquality"
	"github.com/albapepper/almaty-air/internal/cache"
	"github.com/albapepper/almaty-air/internal/config"
	"github.com/albapepper/almaty-air/internal/db"
	"github.com/albapepper/almaty-air/internal/logging"
	"github.com/albapepper/almaty-air/internal/maintenance"
	"github.com/albapepper/almaty-air/internal/notifications"
	"github.com/albapepper/almaty-air/internal/provider/iqair"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "airctl",
		Short:        "Almaty Air operations CLI",
		SilenceUsage: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(fetchCmd())
	root.AddCommand(runCmd())
	root.AddCommand(purgeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("Schema up to date")
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// fetch command
// --------------------------------------------------------------------------

func fetchCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the current reading from IQAir and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			client, err := newProvider(cfg, logger)
			if err != nil {
				return err
			}

			fetchCtx, fetchCancel := context.WithTimeout(ctx, cfg.FetchTimeout)
			defer fetchCancel()
			r, err := client.FetchCurrentReading(fetchCtx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			_, err = fmt.Fprintln(out, airquality.FormatMessage(r, cfg.Location.Name))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw reading as JSON")
	return cmd
}

// --------------------------------------------------------------------------
// run command
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single notification cycle",
	}
	cmd.AddCommand(runDigestCmd())
	cmd.AddCommand(runAlertsCmd())
	return cmd
}

func runDigestCmd() *cobra.Command {
	var (
		at     string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Send the daily digest to subscribers due at a given local time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycle(dryRun, func(ctx context.Context, cfg *config.Config, p *notifications.Pipeline) notifications.CycleResult {
				now, err := digestTime(at, time.Now(), cfg.TimeLocation())
				if err != nil {
					return notifications.CycleResult{Kind: "digest", Skipped: err.Error()}
				}
				return p.RunDigest(ctx, now)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Local time as HH:MM (default: now)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log messages instead of sending them")
	return cmd
}

func runAlertsCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Run one alert evaluation cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycle(dryRun, func(ctx context.Context, _ *config.Config, p *notifications.Pipeline) notifications.CycleResult {
				return p.RunAlerts(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log messages and skip all database writes")
	return cmd
}

// digestTime resolves --at against today's date in loc. An empty value
// means now.
func digestTime(at string, now time.Time, loc *time.Location) (time.Time, error) {
	if at == "" {
		return now, nil
	}
	hm, err := time.Parse("15:04", at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: want HH:MM", at)
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hm.Hour(), hm.Minute(), 0, 0, loc), nil
}

func runCycle(dryRun bool, fn func(ctx context.Context, cfg *config.Config, p *notifications.Pipeline) notifications.CycleResult) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	client, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	var (
		store  notifications.Store = notifications.NewPgStore(pool.Pool)
		sender notifications.Sender
	)
	if dryRun {
		store = readOnlyStore{Store: store, logger: logger}
		sender = notifications.LogSender{Logger: logger}
	} else {
		ts := notifications.NewTelegramSender(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.SendRatePerSecond, logger)
		if ts == nil {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is required (or use --dry-run)")
		}
		sender = ts
	}

	readings := cache.New(client, cfg.CacheTTL, cfg.FetchTimeout, logger)
	p := notifications.NewPipeline(store, sender, readings, notifications.PipelineConfig{
		LocationName: cfg.Location.Name,
		Timezone:     cfg.TimeLocation(),
		Workers:      cfg.DeliveryWorkers,
	}, logger)

	start := time.Now()
	result := fn(ctx, cfg, p)
	logger.Info("Cycle finished",
		"duration", time.Since(start).Round(time.Millisecond),
		"summary", result.Summary())
	if result.Skipped != "" {
		return fmt.Errorf("%s cycle skipped: %s", result.Kind, result.Skipped)
	}
	return nil
}

// readOnlyStore forwards reads and drops writes for dry runs.
type readOnlyStore struct {
	notifications.Store
	logger *slog.Logger
}

func (s readOnlyStore) PersistLastBand(_ context.Context, id int64, band airquality.Band) error {
	s.logger.Info("Dry-run: skip band write", "subscriber_id", id, "band", band.String())
	return nil
}

func (s readOnlyStore) RecordDelivery(context.Context, notifications.Delivery) error {
	return nil
}

// --------------------------------------------------------------------------
// purge command
// --------------------------------------------------------------------------

func purgeCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete old delivery log rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if olderThan == 0 {
				olderThan = cfg.DeliveryLogRetention
			}

			pool, err := db.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			n, err := maintenance.PurgeDeliveries(ctx, pool, olderThan, time.Now(), logger)
			if err != nil {
				return err
			}
			logger.Info("Purge finished", "deleted", n, "older_than", olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Retention window (default: DELIVERY_LOG_RETENTION)")
	return cmd
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg, "airctl")
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newProvider(cfg *config.Config, logger *slog.Logger) (*iqair.Client, error) {
	if cfg.IQAirAPIKey == "" {
		return nil, fmt.Errorf("IQAIR_API_KEY is required")
	}
	return iqair.NewClient(cfg.IQAirBaseURL, cfg.IQAirAPIKey, cfg.Location, cfg.IQAirRequestsPerM, logger), nil
}
