package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptotrack-alerts/config"
	"cryptotrack-alerts/internal/alert"
	"cryptotrack-alerts/internal/database"
	"cryptotrack-alerts/internal/lock"
	"cryptotrack-alerts/internal/metrics"
	"cryptotrack-alerts/internal/notify"
	"cryptotrack-alerts/internal/price"
	"cryptotrack-alerts/internal/server"
	"cryptotrack-alerts/internal/telegram"
	"cryptotrack-alerts/internal/types"
	"cryptotrack-alerts/lib/translation"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const sweepLockKey = "cryptotrack:alerts:sweep-lock"

// store is everything the commands need from a backend.
type store interface {
	alert.Repository
	alert.Inserter
	ListAlerts(ctx context.Context) ([]types.Alert, error)
	UpsertUser(ctx context.Context, u *types.User) error
}

type app struct {
	store   store
	sqlite  *database.SQLiteStore
	metrics *metrics.AlertMetrics
	gateway *price.Gateway
	client  *http.Client
	closers []func() error
}

func init() {
	config.InitConfig()
	setupLogging()
}

func main() {
	translation.Configure("locales", config.GetString("lang"))

	if err := rootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cryptotrack-alerts",
		Short:         "Evaluates crypto price alerts and notifies their owners",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd(), sweepCmd(), alertsCmd(), usersCmd())
	return root
}

func setupLogging() {
	log.SetLevel(log.ErrorLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	if lvl := config.GetString("log_level"); lvl != "" {
		level, err := log.ParseLevel(lvl)
		if err != nil {
			log.Errorf("Invalid LOG_LEVEL %q: %v", lvl, err)
		} else {
			log.SetLevel(level)
		}
	}
	log.Debug("Starting crypto alert service...")
}

func newApp() (*app, error) {
	a := &app{
		client:  &http.Client{Timeout: config.GetDuration("http_timeout")},
		metrics: metrics.NewAlertMetrics(prometheus.DefaultRegisterer),
	}

	switch driver := config.GetString("database_driver"); driver {
	case "postgres":
		db, err := database.OpenPostgres(config.GetString("database_dsn"))
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "could not access postgres pool")
		}
		a.closers = append(a.closers, sqlDB.Close)
		a.store = database.NewPostgresStore(db)
		log.Info("🐘 Using postgres alert store")
	case "sqlite", "":
		db, err := database.Open(config.GetString("database_path"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.sqlite = database.NewSQLiteStore(db)
		a.store = a.sqlite
		log.Infof("🗄️ Using sqlite alert store at %s", config.GetString("database_path"))
	default:
		return nil, errors.Errorf("unknown database driver %q", driver)
	}

	creds := price.Credentials{
		CoinGeckoKey:     config.GetString("coingecko_api_key"),
		CoinMarketCapKey: config.GetString("coinmarketcap_api_key"),
		LiveCoinWatchKey: config.GetString("livecoinwatch_api_key"),
		PaprikaProKey:    config.GetString("api_pro_key"),
	}
	a.gateway = price.NewGateway(price.DefaultProviders(creds, a.client)...).WithObserver(a.metrics)
	log.Debugf("Market data providers: %v", a.gateway.Providers())

	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Errorf("Failed to close resource: %v", err)
		}
	}
}

func (a *app) notifier() (alert.Notifier, error) {
	router := notify.Router{}

	if key := config.GetString("resend_api_key"); key != "" {
		router.Email = notify.NewResendTransport("", key, a.client)
		log.Debugf("Email notifications enabled with key %s", config.MaskSecret(key))
	}

	if token := config.GetString("telegram_bot_token"); token != "" {
		bot, err := telegram.NewBot(telegram.BotConfig{
			Token: token,
			Debug: config.GetBool("debug"),
		})
		if err != nil {
			return nil, err
		}
		router.Telegram = notify.NewTelegramTransport(bot)
	}

	if router.Email == nil && router.Telegram == nil {
		log.Warn("⚠️ No notification transport configured, triggered alerts will only be marked")
		return nil, nil
	}

	return notify.NewNotifier(router, notify.Options{
		From:      config.GetString("email_from"),
		Attempts:  config.GetInt("notify_attempts"),
		BaseDelay: config.GetDuration("notify_base_delay"),
	}), nil
}

func (a *app) sweeper() (*alert.Sweeper, error) {
	n, err := a.notifier()
	if err != nil {
		return nil, err
	}

	return alert.NewSweeper(a.store, a.gateway, n, alert.Options{
		Workers:  config.GetInt("sweep_workers"),
		Observer: a.metrics,
	}), nil
}

func (a *app) locker() lock.Locker {
	chain := lock.Chain{lock.NewLocalLocker()}

	if addr := config.GetString("redis_addr"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.GetString("redis_password"),
			DB:       config.GetInt("redis_db"),
		})
		a.closers = append(a.closers, client.Close)
		chain = append(chain, lock.NewRedisLocker(client, sweepLockKey, config.GetDuration("lock_ttl")))
		log.Infof("🔒 Sharing sweep lock through redis at %s", addr)
	}

	return chain
}

func (a *app) loadMetrics(ctx context.Context) {
	if a.sqlite == nil {
		return
	}
	if err := a.metrics.LoadFromStore(ctx, a.sqlite); err != nil {
		log.Errorf("Failed to load metrics: %v", err)
	}
}

func (a *app) saveMetrics(ctx context.Context) {
	if a.sqlite == nil {
		return
	}
	if err := a.metrics.SaveToStore(ctx, a.sqlite); err != nil {
		log.Errorf("Failed to save metrics: %v", err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic sweep with the sweep, metrics and health endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			a.loadMetrics(ctx)

			sweeper, err := a.sweeper()
			if err != nil {
				return err
			}
			locker := a.locker()

			done := alert.StartSweepService(ctx, sweeper, locker, config.GetDuration("sweep_interval"))

			go func() {
				ticker := time.NewTicker(5 * time.Minute)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						a.saveMetrics(ctx)
					}
				}
			}()

			router := server.Setup(sweeper, locker, prometheus.DefaultGatherer)
			err = server.ListenAndServe(ctx, fmt.Sprintf(":%d", config.GetInt("metrics_port")), router)

			stop()
			<-done
			a.saveMetrics(context.Background())
			log.Info("Metrics saved, shutting down...")

			return err
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweep and print its summary as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			a.loadMetrics(ctx)
			defer a.saveMetrics(context.Background())

			sweeper, err := a.sweeper()
			if err != nil {
				return err
			}

			summary, err := alert.RunLocked(ctx, sweeper, a.locker())
			if err != nil {
				printJSON(cmd, server.SweepResponse{Status: server.StatusError, Message: err.Error()})
				return err
			}

			printJSON(cmd, server.SuccessResponse(summary))
			return nil
		},
	}
}
