package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/reboucasericka/Sistema-sub001/internal/api"
	"github.com/reboucasericka/Sistema-sub001/internal/booking"
	"github.com/reboucasericka/Sistema-sub001/internal/cache"
	"github.com/reboucasericka/Sistema-sub001/internal/config"
	"github.com/reboucasericka/Sistema-sub001/internal/db"
	"github.com/reboucasericka/Sistema-sub001/internal/lock"
	"github.com/reboucasericka/Sistema-sub001/internal/metrics"
	"github.com/reboucasericka/Sistema-sub001/internal/model"
	"github.com/reboucasericka/Sistema-sub001/internal/notify"
	"github.com/reboucasericka/Sistema-sub001/internal/notify/gcal"
	"github.com/reboucasericka/Sistema-sub001/internal/pgstore"
)

// store is what the engine and the catalog watcher need from persistence.
type store interface {
	booking.Directory
	booking.RuleSource
	booking.Store
	SyncCatalog(ctx context.Context, catalog model.Catalog) error
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SCHEDULER_CONFIG_PATH"))
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	loc := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, ready, closeStore, err := openStore(ctx, cfg, loc, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("open store error")
	}
	defer closeStore()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	deps := booking.Deps{Directory: st, Rules: st, Store: st}

	if cfg.Booking.Lock == "redis" {
		deps.Locker = lock.NewRedisLocker(rdb, lock.RedisConfig{TTL: cfg.LockTTL(), Wait: cfg.LockWait()}, &logger)
		logger.Info().Msg("Using Redis booking lock")
	}

	var slotCache *cache.SlotCache
	if rdb != nil {
		slotCache = cache.NewSlotCache(rdb, cfg.SlotCacheTTL(), &logger)
		deps.Cache = slotCache
	}

	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		QueueSize:   cfg.Notifications.QueueSize,
		Workers:     cfg.Notifications.Workers,
		Rate:        cfg.Notifications.RatePerSecond,
		Burst:       cfg.Notifications.Burst,
		RetryDelays: cfg.RetryDelays(),
	}, &logger, buildSinks(ctx, cfg, loc, &logger)...)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()
	deps.Notifier = dispatcher

	svc := booking.NewService(deps, booking.Config{
		Granularity: cfg.Granularity(),
		Location:    loc,
	}, &logger)

	err = config.WatchCatalog(ctx, cfg.Catalog.Path, cfg.CatalogReloadInterval(),
		func(c *config.CatalogConfig) {
			if err := st.SyncCatalog(ctx, c.ToModel()); err != nil {
				logger.Error().Err(err).Msg("Catalog sync failed")
				return
			}
			if slotCache != nil {
				if n, err := slotCache.InvalidateAll(ctx); err != nil {
					logger.Warn().Err(err).Msg("Slot cache flush failed")
				} else {
					logger.Debug().Int("keys", n).Msg("Slot cache flushed")
				}
			}
		},
		func(err error) {
			logger.Error().Err(err).Str("path", cfg.Catalog.Path).Msg("Catalog reload failed")
		},
	)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Catalog.Path).Msg("load catalog error")
	}

	if sqliteDB, ok := st.(*db.DB); ok && cfg.Backup.Enabled {
		go db.NewBackupService(sqliteDB, cfg.Backup, &logger).Start(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, ready, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewHTTPServer(svc, &logger).Handler(),
		ReadTimeout:  seconds(cfg.Server.ReadTimeoutSeconds, 10),
		WriteTimeout: seconds(cfg.Server.WriteTimeoutSeconds, 15),
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().
		Int("port", cfg.Server.Port).
		Str("timezone", loc.String()).
		Dur("granularity", svc.Granularity()).
		Msg("Scheduler started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("Scheduler stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Format == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}

func openStore(ctx context.Context, cfg *config.Config, loc *time.Location, logger *zerolog.Logger) (store, func(context.Context) error, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		pg, err := pgstore.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns, loc, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return pg, pg.Ping, pg.Close, nil
	default:
		sqliteDB, err := db.NewDB(cfg.Database.Path, loc, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return sqliteDB, sqliteDB.PingContext, func() { _ = sqliteDB.Close() }, nil
	}
}

func buildSinks(ctx context.Context, cfg *config.Config, loc *time.Location, logger *zerolog.Logger) []notify.Sink {
	sinks := []notify.Sink{notify.NewLogSink(logger)}

	if cfg.Telegram.Enabled {
		bot, err := notify.NewTelegramBot(cfg.Telegram.BotToken)
		if err != nil {
			logger.Error().Err(err).Msg("Telegram notifications disabled")
		} else {
			sinks = append(sinks, notify.NewTelegramSink(bot, cfg.Telegram.ChatIDs, loc))
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		sinks = append(sinks, notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	}

	if cfg.GoogleCalendar.Enabled {
		sink, err := gcal.New(ctx, gcal.Config{
			CredentialsFile:   cfg.GoogleCalendar.CredentialsFile,
			DefaultCalendarID: cfg.GoogleCalendar.DefaultCalendarID,
			Calendars:         cfg.GoogleCalendar.Calendars,
			Location:          loc,
		})
		if err != nil {
			logger.Error().Err(err).Msg("Google Calendar sync disabled")
		} else {
			sinks = append(sinks, sink)
		}
	}

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	logger.Info().Strs("sinks", names).Msg("Notification sinks configured")
	return sinks
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

func startHealthServer(ctx context.Context, port int, ready func(context.Context) error, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := ready(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
