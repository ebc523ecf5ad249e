// htmlfwd-client keeps persistent connections to a set of htmlfwd hosts
// and serves observer sessions on a local WebSocket endpoint.
//
// Configuration comes from a YAML file (--config) plus HTMLFWD_* env vars:
//
//	HTMLFWD_MIN_BACKOFF      first retry delay (default 10s)
//	HTMLFWD_MAX_BACKOFF      retry delay cap (default 10m)
//	HTMLFWD_KEEPALIVE_MARGIN slack added to the announced heartbeat interval
//	HTMLFWD_REMOTE_PATH      WebSocket path on each host (default /ws)
//
// The endpoint list is persisted on every reload, to a YAML file
// (--store-file) or a Postgres table (--database-url).
//
// Usage:
//
//	go run ./cmd/htmlfwd-client --config htmlfwd.yaml --listen 127.0.0.1:8890
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	htmlfwd "github.com/htmlfwd/go-client"
	"github.com/htmlfwd/go-client/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"
)

type options struct {
	configPath  string
	listen      string
	storeFile   string
	databaseURL string
	logLevel    string
	logFile     string
	logJSON     bool
	endpoints   []string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("htmlfwd-client", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "YAML config file")
	flagSet.StringVar(&opts.listen, "listen", "127.0.0.1:8890", "address serving observer sessions at /observe")
	flagSet.StringVar(&opts.storeFile, "store-file", "", "persist the endpoint list to this YAML file")
	flagSet.StringVar(&opts.databaseURL, "database-url", "", "persist the endpoint list to Postgres")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flagSet.StringVar(&opts.logFile, "log-file", "", "write logs to this file, rotated")
	flagSet.BoolVar(&opts.logJSON, "log-json", false, "log in JSON format")
	flagSet.StringSliceVar(&opts.endpoints, "endpoint", nil, "endpoint as label=host (repeatable, overrides config endpoints)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger, err := newLogger(opts)
	if err != nil {
		return err
	}

	var cfg htmlfwd.Config
	if opts.configPath != "" {
		if cfg, err = htmlfwd.LoadConfig(opts.configPath); err != nil {
			return err
		}
	}
	if len(opts.endpoints) > 0 {
		if cfg.Endpoints, err = parseEndpoints(opts.endpoints); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientOpts := []htmlfwd.Option{htmlfwd.WithLogger(logger)}
	switch {
	case opts.databaseURL != "":
		pg, err := store.OpenPostgres(ctx, opts.databaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		clientOpts = append(clientOpts, htmlfwd.WithStore(pg))
	case opts.storeFile != "":
		clientOpts = append(clientOpts, htmlfwd.WithStore(store.NewFileStore(opts.storeFile)))
	}

	client, err := htmlfwd.NewClient(cfg, htmlfwd.LogErrors(logger), clientOpts...)
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	for kind, fn := range directiveLoggers(logger) {
		if err := client.Handle(kind, fn); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/observe", client.ObserverHandler())
	server := &http.Server{
		Addr:              opts.listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithField("addr", opts.listen).Info("serving observers")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("observer server failed")
			stop()
		}
	}()

	runErr := client.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("observer server shutdown")
	}
	logger.Info("shutting down")
	return runErr
}

func newLogger(opts options) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	logger.SetLevel(level)

	if opts.logJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if opts.logFile != "" {
		logger.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}))
	}
	return logger, nil
}

// directiveLoggers handles every directive kind by logging it. A desktop
// integration replaces these with calls that open a browser tab or raise
// a notification.
func directiveLoggers(logger logrus.FieldLogger) map[htmlfwd.DirectiveKind]htmlfwd.DirectiveFunc {
	return map[htmlfwd.DirectiveKind]htmlfwd.DirectiveFunc{
		htmlfwd.DirectiveOpenURL: func(d *htmlfwd.Directive) error {
			logger.WithFields(logrus.Fields{"endpoint": d.Endpoint, "id": d.ID, "url": d.URL}).Info("open url")
			return nil
		},
		htmlfwd.DirectiveNotification: func(d *htmlfwd.Directive) error {
			logger.WithFields(logrus.Fields{"endpoint": d.Endpoint, "id": d.ID}).Info(d.Text)
			return nil
		},
		htmlfwd.DirectiveCloseTabs: func(d *htmlfwd.Directive) error {
			logger.WithFields(logrus.Fields{"endpoint": d.Endpoint, "id": d.ID}).Info("close tabs")
			return nil
		},
	}
}
