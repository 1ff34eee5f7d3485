// cryptorun-core wires the substrate's packages into a runnable process:
// venue adapters behind rate limiters and circuit breakers, the historical
// ingestion pipeline against ClickHouse, and the monitor loop (metrics
// exposition, health scheduler, alert notification).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cryptorun/core/internal/alert"
	"github.com/cryptorun/core/internal/checkpoint"
	"github.com/cryptorun/core/internal/config"
	"github.com/cryptorun/core/internal/eventbus"
	"github.com/cryptorun/core/internal/exchange"
	"github.com/cryptorun/core/internal/exchange/binance"
	"github.com/cryptorun/core/internal/health"
	"github.com/cryptorun/core/internal/ingest"
	"github.com/cryptorun/core/internal/metrics"
	"github.com/cryptorun/core/internal/notify"
	"github.com/cryptorun/core/internal/ratelimit"
	"github.com/cryptorun/core/internal/secrets"
	"github.com/cryptorun/core/internal/store"
	"github.com/cryptorun/core/internal/telemetry"
)

const (
	appName = "cryptorun-core"
	version = "v0.3.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Multi-exchange trading data and observability substrate",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (defaults apply when omitted)")

	rootCmd.AddCommand(newIngestCmd(), newMonitorCmd(), newCheckpointsCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newCheckpointStore(ctx context.Context, cfg config.Config) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Backend {
	case "clickhouse":
		return checkpoint.NewClickHouseStore(ctx, cfg.ClickHouse.Addr, cfg.ClickHouse.Database, cfg.ClickHouse.Username, cfg.ClickHouse.Password)
	default:
		return checkpoint.NewLocalStore(cfg.Checkpoint.Dir)
	}
}

func newAdapters(cfg config.Config, bus *eventbus.Bus) map[string]exchange.Adapter {
	adapters := make(map[string]exchange.Adapter)
	for venue, vc := range cfg.Venues {
		switch venue {
		case "binance":
			adapters[venue] = binance.New(binance.Credentials{APIKey: vc.APIKey, APISecret: vc.APISecret}, bus)
		default:
			log.Warn().Str("venue", venue).Msg("no adapter implemented for configured venue")
		}
	}
	return adapters
}

func newIngestCmd() *cobra.Command {
	var (
		venues    []string
		symbols   []string
		dataTypes []string
		startStr  string
		endStr    string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Download historical series into the columnar store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			start, err := time.Parse(time.RFC3339, startStr)
			if err != nil {
				return fmt.Errorf("parse --start: %w", err)
			}
			end, err := time.Parse(time.RFC3339, endStr)
			if err != nil {
				return fmt.Errorf("parse --end: %w", err)
			}
			if len(symbols) == 0 {
				symbols = cfg.Ingest.Symbols
			}
			if len(symbols) == 0 {
				return errors.New("no symbols: pass --symbols or set ingest.symbols")
			}
			if len(dataTypes) == 0 {
				dataTypes = cfg.Ingest.DataTypes
			}

			ctx, cancel := signalContext()
			defer cancel()

			bus := eventbus.New()
			adapters := newAdapters(cfg, bus)

			sources := make(map[string]ingest.Source)
			for _, venue := range venues {
				a, ok := adapters[venue]
				if !ok {
					return fmt.Errorf("venue %q is not configured", venue)
				}
				src, ok := a.(ingest.Source)
				if !ok {
					return fmt.Errorf("venue %q does not support historical range fetches", venue)
				}
				sources[venue] = src
			}

			sink, err := store.NewClickHouseStore(ctx, store.Options{
				Addr: cfg.ClickHouse.Addr, Database: cfg.ClickHouse.Database,
				Username: cfg.ClickHouse.Username, Password: cfg.ClickHouse.Password,
			})
			if err != nil {
				return err
			}
			defer sink.Close()

			ckpt, err := newCheckpointStore(ctx, cfg)
			if err != nil {
				return err
			}

			dts := make([]ingest.DataType, 0, len(dataTypes))
			for _, dt := range dataTypes {
				dts = append(dts, ingest.DataType(dt))
			}

			var knownSecrets []string
			for _, vc := range cfg.Venues {
				knownSecrets = append(knownSecrets, vc.APIKey, vc.APISecret, vc.Passphrase)
			}

			orch := ingest.New(ingest.Config{
				Concurrency:  cfg.Ingest.Concurrency,
				BatchSize:    cfg.Ingest.BatchSize,
				RequestDelay: cfg.Ingest.GetRequestDelay(),
				Redactor:     secrets.NewRedactor(knownSecrets...),
			}, sources, sink, ckpt, bus)

			go func() {
				<-ctx.Done()
				orch.Stop()
			}()

			plan := ingest.Plan{
				Venues: venues, Symbols: symbols, DataTypes: dts,
				StartTime: start.UTC(), EndTime: end.UTC(), Interval: cfg.Ingest.Interval,
			}
			log.Info().Int("venues", len(venues)).Int("symbols", len(symbols)).Msg("ingestion starting")
			if err := orch.Run(context.Background(), plan); err != nil {
				return err
			}
			log.Info().Msg("ingestion finished")
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&venues, "venues", []string{"binance"}, "venues to download from")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "symbols, e.g. BTCUSDT,ETHUSDT")
	cmd.Flags().StringSliceVar(&dataTypes, "data-types", nil, "data types: kline,mark_price,open_interest,funding_rate,agg_trade")
	cmd.Flags().StringVar(&startStr, "start", "", "range start, RFC3339")
	cmd.Flags().StringVar(&endStr, "end", "", "range end, RFC3339")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Run the telemetry core: metrics endpoint, health checks, alerting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			registry := metrics.NewRegistry(cfg.Metrics.GetHistoryRetention())
			engine := alert.New(cfg.Alerting.GetDedupeWindow(), cfg.Alerting.MaxAlertHistory)
			notifier, err := buildNotifier(cfg)
			if err != nil {
				return err
			}

			bus := eventbus.New()
			adapters := newAdapters(cfg, bus)
			limiters := ratelimit.NewManager()
			for venue, vc := range cfg.Venues {
				limiters.Register(venue, vc.MaxRequests, vc.GetWindow())
			}

			adapterList := make([]exchange.Adapter, 0, len(adapters))
			scheduler := health.NewScheduler(cfg.Health.GetInterval(), engine)
			for _, a := range adapters {
				adapterList = append(adapterList, a)
				scheduler.RegisterChecker(adapterChecker{a})
			}
			scheduler.RegisterChecker(&health.MemoryChecker{
				WarnBytes:     cfg.Health.MemWarnMB << 20,
				CriticalBytes: cfg.Health.MemCriticalMB << 20,
			})
			scheduler.RegisterChecker(&health.SchedulerDelayChecker{
				WarnDelay:     100 * time.Millisecond,
				CriticalDelay: time.Second,
			})

			exporter := telemetry.New(registry, limiters, bus, adapterList, 15*time.Second)

			router := mux.NewRouter()
			router.Handle("/metrics", registry.Handler()).Methods(http.MethodGet)
			router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				status := scheduler.SystemStatus()
				if status == health.StatusUnhealthy {
					w.WriteHeader(http.StatusServiceUnavailable)
				}
				fmt.Fprintln(w, status)
			}).Methods(http.MethodGet)
			server := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: router}

			go func() {
				log.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("metrics endpoint listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("metrics server failed")
					cancel()
				}
			}()

			go exporter.Run(ctx)
			go scheduler.Run(ctx)
			go notifyLoop(ctx, engine, notifier)
			go sweepLoop(ctx, engine)

			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

// adapterChecker exposes one venue adapter's Health() as a health checker.
type adapterChecker struct {
	adapter exchange.Adapter
}

func (c adapterChecker) Name() string { return "adapter_" + c.adapter.Venue() }

func (c adapterChecker) Check(ctx context.Context) health.Result {
	h := c.adapter.Health()
	status := health.StatusHealthy
	if !h.Healthy {
		status = health.StatusUnhealthy
	}
	return health.Result{Status: status, Details: h.LastError}
}

// notifyLoop delivers every newly active alert through the notifier.
func notifyLoop(ctx context.Context, engine *alert.Engine, notifier *notify.Notifier) {
	seen := make(map[string]struct{})
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, a := range engine.List() {
				if a.Status != alert.StatusActive {
					continue
				}
				if _, ok := seen[a.ID]; ok {
					continue
				}
				seen[a.ID] = struct{}{}
				notifier.Send(ctx, a)
			}
		}
	}
}

// sweepLoop returns expired silences to active on a coarse tick.
func sweepLoop(ctx context.Context, engine *alert.Engine) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.SweepSilenced()
		}
	}
}

func buildNotifier(cfg config.Config) (*notify.Notifier, error) {
	n := notify.New(&notify.ConsoleChannel{Logger: log.Logger, Severity: alert.LevelInfo})

	if cfg.Alerting.Webhook.Enabled {
		n.AddChannel(&notify.WebhookChannel{
			URL:      cfg.Alerting.Webhook.URL,
			Severity: parseLevel(cfg.Alerting.Webhook.MinLevel),
		})
	}
	if cfg.Alerting.GroupBot.Enabled {
		n.AddChannel(&notify.GroupBotChannel{
			URL:      cfg.Alerting.GroupBot.URL,
			Secret:   cfg.Alerting.GroupBot.Secret,
			Severity: parseLevel(cfg.Alerting.GroupBot.MinLevel),
		})
	}
	if cfg.Alerting.Telegram.Enabled {
		tg, err := notify.NewTelegramChannel(cfg.Alerting.Telegram.Token, cfg.Alerting.Telegram.ChatID, parseLevel(cfg.Alerting.Telegram.MinLevel))
		if err != nil {
			return nil, err
		}
		n.AddChannel(tg)
	}
	if cfg.Alerting.Email.Enabled {
		n.AddChannel(&notify.EmailChannel{
			Host: cfg.Alerting.Email.Host, Username: cfg.Alerting.Email.Username,
			Password: cfg.Alerting.Email.Password, From: cfg.Alerting.Email.From,
			To: cfg.Alerting.Email.To, Severity: parseLevel(cfg.Alerting.Email.MinLevel),
		})
	}
	return n, nil
}

func parseLevel(s string) alert.Level {
	switch s {
	case "warning":
		return alert.LevelWarning
	case "critical":
		return alert.LevelCritical
	case "emergency":
		return alert.LevelEmergency
	default:
		return alert.LevelInfo
	}
}

func newCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints",
		Short: "List stored ingestion checkpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			ckpt, err := newCheckpointStore(ctx, cfg)
			if err != nil {
				return err
			}

			all, err := ckpt.GetAll(ctx)
			if err != nil {
				return err
			}
			for _, c := range all {
				fmt.Printf("%-10s %-14s %-14s %-10s last=%d count=%d %s\n",
					c.Venue, c.Symbol, c.DataType, c.Status, c.LastTimestamp, c.DownloadedCount, c.ErrorMessage)
			}
			return nil
		},
	}
}
