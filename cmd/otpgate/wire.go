package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/internal"
	"github.com/MrEthical07/otpgate/internal/logging"
	"github.com/MrEthical07/otpgate/mail"
	"github.com/MrEthical07/otpgate/mail/postmark"
	"github.com/MrEthical07/otpgate/mail/ses"
	"github.com/MrEthical07/otpgate/userstore/memory"
	"github.com/MrEthical07/otpgate/userstore/mongo"
	"github.com/MrEthical07/otpgate/userstore/postgres"
	"github.com/MrEthical07/otpgate/userstore/sqlite"
)

// closers runs cleanup functions in reverse order of registration.
type closers []func() error

func (c *closers) add(f func() error) {
	*c = append(*c, f)
}

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openRedis(ctx context.Context, cfg config, cl *closers) (redis.UniversalClient, error) {
	addr := cfg.redis.addr
	if cfg.dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start in-process redis: %w", err)
		}
		cl.add(func() error { mr.Close(); return nil })
		addr = mr.Addr()
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.redis.password,
		DB:       cfg.redis.db,
	})
	cl.add(client.Close)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func openUserStore(ctx context.Context, cfg storeConfig, cl *closers) (otpgate.UserDirectory, error) {
	switch cfg.driver {
	case "memory":
		return memory.New(), nil
	case "postgres":
		store, db, err := postgres.Open(ctx, cfg.dsn)
		if err != nil {
			return nil, err
		}
		cl.add(db.Close)
		return store, nil
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.dsn)
		if err != nil {
			return nil, err
		}
		cl.add(store.Close)
		return store, nil
	case "mongo":
		store, client, err := mongo.Connect(ctx, cfg.dsn, mongo.Config{DBName: cfg.mongoDB})
		if err != nil {
			return nil, err
		}
		cl.add(func() error { return client.Disconnect(context.Background()) })
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.driver)
	}
}

func newMailSender(ctx context.Context, cfg mailConfig, logger *logging.SlogLogger) (otpgate.MailSender, error) {
	switch cfg.driver {
	case "log":
		return mail.NewLogSender(logger.Slog()), nil
	case "postmark":
		sender, err := postmark.NewSender(http.DefaultClient, postmark.Settings{
			APIURL:        cfg.postmark.apiURL,
			ServerToken:   cfg.postmark.token,
			From:          cfg.from,
			MessageStream: cfg.postmark.stream,
		})
		if err != nil {
			return nil, fmt.Errorf("postmark: %w", err)
		}
		return sender, nil
	case "ses":
		sender, err := ses.New(ctx, ses.Settings{
			Region:           cfg.ses.region,
			From:             cfg.from,
			ConfigurationSet: cfg.ses.configurationSet,
			BaseEndpoint:     cfg.ses.endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("ses: %w", err)
		}
		return sender, nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.driver)
	}
}

func newEngine(cfg config, rdb redis.UniversalClient, users otpgate.UserDirectory, mailer otpgate.MailSender, logger *logging.SlogLogger) (*otpgate.Engine, error) {
	engineCfg := cfg.engine
	if len(engineCfg.Session.PrivateKey) == 0 && cfg.dev {
		key, err := internal.NewPepper()
		if err != nil {
			return nil, fmt.Errorf("generate dev session key: %w", err)
		}
		engineCfg.Session.PrivateKey = key
	}

	return otpgate.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserDirectory(users).
		WithMailSender(mailer).
		WithComposer(mail.HTMLComposer).
		WithAuditSink(otpgate.NewSlogSink(logger.Slog().With("component", "audit"))).
		Build()
}
