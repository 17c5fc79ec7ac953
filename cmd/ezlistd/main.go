// ezlistd runs a mailing list manager against an ordinary mail account:
// it polls a mailbox over IMAP, handles subscription commands and
// forwards everything else to the subscribers over SMTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	mongodrv "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/qll/ezlist"
	"github.com/qll/ezlist/config"
	"github.com/qll/ezlist/imap"
	"github.com/qll/ezlist/smtp"
	"github.com/qll/ezlist/store"
	memorystore "github.com/qll/ezlist/store/memory"
	mongostore "github.com/qll/ezlist/store/mongo"
	postgresstore "github.com/qll/ezlist/store/postgres"
	redisstore "github.com/qll/ezlist/store/redis"
)

func main() {
	configPath := flag.String("config", "ezlist.toml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := newStore(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to set up %s store: %w", cfg.Storage.Backend, err)
	}
	if err := st.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect %s store: %w", cfg.Storage.Backend, err)
	}
	defer func() {
		// Shutdown context is already canceled at this point.
		if err := st.Close(context.Background()); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	manager, err := newManager(cfg, st, logger)
	if err != nil {
		return err
	}

	interval, err := cfg.List.GetPollInterval()
	if err != nil {
		return err
	}

	logger.Info("starting list manager",
		"list", manager.ListAddress(),
		"storage", cfg.Storage.Backend,
		"poll_interval", interval,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poll(ctx, manager, interval, logger)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}

// poll runs processing passes until ctx is canceled. A failed pass is
// logged and retried on the next tick; messages stay in the mailbox
// until they are processed successfully.
func poll(ctx context.Context, manager *ezlist.Manager, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := manager.Process(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("processing pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func newManager(cfg config.Config, st store.Store, logger *slog.Logger) (*ezlist.Manager, error) {
	inbox := imap.New(cfg.IMAP.Addr, cfg.IMAP.Username, cfg.IMAP.Password,
		imap.WithLogger(logger),
		imap.WithMailbox(cfg.IMAP.Mailbox),
		imap.WithSecurity(imapSecurity(cfg.IMAP.Security)),
	)
	smtpOpts := []smtp.Option{
		smtp.WithLogger(logger),
		smtp.WithSecurity(smtpSecurity(cfg.SMTP.Security)),
		smtp.WithCredentials(cfg.SMTP.Username, cfg.SMTP.Password),
	}
	if cfg.SMTP.Hello != "" {
		smtpOpts = append(smtpOpts, smtp.WithHello(cfg.SMTP.Hello))
	}
	sender := smtp.New(cfg.SMTP.Addr, smtpOpts...)

	opts := []ezlist.Option{
		ezlist.WithLogger(logger),
		ezlist.WithSubjectPrefix(cfg.List.SubjectPrefix),
		ezlist.WithSkipSender(cfg.List.SkipSender),
		ezlist.WithSubscriptionManagement(cfg.List.ManageSubscriptions),
		ezlist.WithMetrics(cfg.Telemetry.Metrics),
		ezlist.WithTracing(cfg.Telemetry.Tracing),
	}
	if cfg.Templates.Directory != "" {
		templates, err := ezlist.LoadTemplates(cfg.Templates.Directory)
		if err != nil {
			return nil, fmt.Errorf("failed to load templates from %s: %w", cfg.Templates.Directory, err)
		}
		opts = append(opts, ezlist.WithTemplates(templates))
	}

	return ezlist.NewManager(cfg.List.Address, inbox, sender, st, opts...)
}

func newStore(cfg config.StorageConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Backend {
	case "postgres":
		db, err := sqlx.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		return postgresstore.New(db,
			postgresstore.WithLogger(logger),
			postgresstore.WithTablePrefix(cfg.Postgres.TablePrefix),
		), nil
	case "mongo":
		client, err := mongodrv.Connect(mongooptions.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, err
		}
		opts := []mongostore.Option{
			mongostore.WithLogger(logger),
			mongostore.WithDatabase(cfg.Mongo.Database),
		}
		if cfg.Mongo.WithoutTransactions {
			opts = append(opts, mongostore.WithoutTransactions())
		}
		return mongostore.New(client, opts...), nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return redisstore.New(client,
			redisstore.WithLogger(logger),
			redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix),
		), nil
	default:
		return memorystore.New(), nil
	}
}

func imapSecurity(s string) imap.Security {
	switch s {
	case "starttls":
		return imap.SecurityStartTLS
	case "none":
		return imap.SecurityNone
	default:
		return imap.SecurityTLS
	}
}

func smtpSecurity(s string) smtp.Security {
	switch s {
	case "tls":
		return smtp.SecurityTLS
	case "none":
		return smtp.SecurityNone
	default:
		return smtp.SecurityStartTLS
	}
}
