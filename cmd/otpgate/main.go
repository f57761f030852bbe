// Command otpgate serves the OTP-gated registration and login API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/otpgate/httpapi"
	"github.com/MrEthical07/otpgate/internal/logging"
	"github.com/MrEthical07/otpgate/metrics/export/prometheus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, w io.Writer) int {
	fs := flag.NewFlagSet("otpgate", flag.ContinueOnError)
	fs.SetOutput(w)
	envFile := fs.String("env-file", "", "load environment variables from this file before reading config")
	dev := fs.Bool("dev", false, "run with in-process redis, in-memory users and logged mail")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(w, "failed to load env file %s: %v\n", *envFile, err)
			return 1
		}
	}

	cfg, err := configFromEnv(*dev)
	if err != nil {
		fmt.Fprintf(w, "failed to get config from environment: %v\n", err)
		return 1
	}

	logger, err := logging.New(w, cfg.log.level, cfg.log.json)
	if err != nil {
		fmt.Fprintf(w, "failed to create logger: %v\n", err)
		return 1
	}

	var cl closers
	defer func() {
		if err := cl.close(); err != nil {
			logger.Error(context.Background(), "failed to release resources", "error", err)
		}
	}()

	rdb, err := openRedis(ctx, cfg, &cl)
	if err != nil {
		logger.Error(ctx, "failed to connect to redis", "error", err)
		return 1
	}

	users, err := openUserStore(ctx, cfg.store, &cl)
	if err != nil {
		logger.Error(ctx, "failed to open user store", "driver", cfg.store.driver, "error", err)
		return 1
	}

	mailer, err := newMailSender(ctx, cfg.mail, logger)
	if err != nil {
		logger.Error(ctx, "failed to create mail sender", "driver", cfg.mail.driver, "error", err)
		return 1
	}

	engine, err := newEngine(cfg, rdb, users, mailer, logger)
	if err != nil {
		logger.Error(ctx, "failed to build engine", "error", err)
		return 1
	}
	cl.add(func() error { engine.Close(); return nil })

	srv := &http.Server{
		Addr:         cfg.http.addr,
		ReadTimeout:  cfg.http.readTimeout,
		WriteTimeout: cfg.http.writeTimeout,
		IdleTimeout:  cfg.http.idleTimeout,
		Handler: httpapi.NewServer(&httpapi.ServerDeps{
			Logger:  logger.With("component", "http"),
			Engine:  engine,
			Metrics: prometheus.NewExporter(engine).Handler(),
		}),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info(gCtx, "starting http server",
			"addr", cfg.http.addr,
			"dev", cfg.dev,
			"store", cfg.store.driver,
			"mail", cfg.mail.driver,
		)
		// ListenAndServe always returns a non-nil error; g cancels gCtx on
		// return, which stops the shutdown goroutine too.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info(context.Background(), "stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.http.shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(context.Background(), "http server stopped with error", "error", err)
		return 1
	}

	logger.Info(context.Background(), "http server stopped successfully")
	return 0
}
