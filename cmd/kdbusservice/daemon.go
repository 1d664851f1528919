package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sailfishos-mirror/kdbusaddons"
	"github.com/sailfishos-mirror/kdbusaddons/internal/history"
	"github.com/sailfishos-mirror/kdbusaddons/internal/history/factory"
	"github.com/sailfishos-mirror/kdbusaddons/internal/logger"
)

// daemonSettings is the merged view of the config file and the run
// flags. Flags win where both set a value.
type daemonSettings struct {
	domain  string
	name    string
	options kdbusaddons.StartupOptions

	replaceTimeout time.Duration
	delivery       kdbusaddons.DeliveryMode

	log logger.Config

	httpListen    string
	httpBasePath  string
	metricsListen string
	historyDSNs   []string
}

func mergeSettings(configPath string, flags RunFlags) (daemonSettings, error) {
	var st daemonSettings
	if configPath != "" {
		fc, err := kdbusaddons.LoadConfig(configPath)
		if err != nil {
			return st, err
		}
		st.domain = fc.Service.Domain
		st.name = fc.Service.Name
		st.options = fc.Service.Options()
		st.replaceTimeout = fc.Service.ReplaceTimeout
		st.delivery = fc.Service.DeliveryMode()
		if fc.Log != nil {
			st.log = *fc.Log
		}
		if fc.HTTP != nil {
			st.httpListen = fc.HTTP.Listen
			st.httpBasePath = fc.HTTP.BasePath
		}
		if fc.Metrics != nil && fc.Metrics.Enabled {
			st.metricsListen = fc.Metrics.Listen
		}
		if fc.History != nil {
			st.historyDSNs = fc.History.DSNs
		}
	} else {
		st.options = kdbusaddons.Unique
	}

	if flags.Domain != "" {
		st.domain = flags.Domain
	}
	if flags.Name != "" {
		st.name = flags.Name
	}
	if flags.Multiple {
		st.options = (st.options &^ kdbusaddons.Unique) | kdbusaddons.Multiple
	}
	if flags.Replace {
		st.options |= kdbusaddons.Replace
	}
	if flags.NoExitOnFailure {
		st.options |= kdbusaddons.NoExitOnFailure
	}
	if flags.ReplaceTimeout > 0 {
		st.replaceTimeout = flags.ReplaceTimeout
	}
	if flags.Queued {
		st.delivery = kdbusaddons.DeliverQueued
	}
	if flags.HTTPListen != "" {
		st.httpListen = flags.HTTPListen
	}
	if flags.HTTPBasePath != "" {
		st.httpBasePath = flags.HTTPBasePath
	}
	if flags.MetricsListen != "" {
		st.metricsListen = flags.MetricsListen
	}
	if len(flags.HistoryDSNs) > 0 {
		st.historyDSNs = flags.HistoryDSNs
	}

	if st.domain == "" || st.name == "" {
		return st, errors.New("domain and name are required (flags or config file)")
	}
	return st, nil
}

func buildRecorder(dsns []string, log *slog.Logger) (*history.Recorder, []io.Closer, error) {
	if len(dsns) == 0 {
		return nil, nil, nil
	}
	var sinks []history.Sink
	var closers []io.Closer
	for _, dsn := range dsns {
		sink, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, nil, fmt.Errorf("history sink %q: %w", dsn, err)
		}
		sinks = append(sinks, sink)
		if c, ok := sink.(io.Closer); ok {
			closers = append(closers, c)
		}
	}
	return history.NewRecorder(sinks, log, 0), closers, nil
}

// runDaemon implements the default termination policy: the winning
// instance serves activations until quit; a losing one forwards its
// command line and exits with the owner's code; a failed registration
// exits nonzero unless NoExitOnFailure was given.
func runDaemon(configPath string, flags RunFlags) error {
	st, err := mergeSettings(configPath, flags)
	if err != nil {
		return err
	}

	log, logCloser := st.log.New()
	if logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}

	recorder, sinkClosers, err := buildRecorder(st.historyDSNs, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range sinkClosers {
			_ = c.Close()
		}
	}()

	if st.metricsListen != "" {
		if err := kdbusaddons.RegisterMetricsDefault(); err != nil {
			log.Warn("metrics registration failed", slog.Any("error", err))
		}
		go func() {
			if err := kdbusaddons.ServeMetrics(st.metricsListen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	svc, err := kdbusaddons.New(kdbusaddons.Config{
		Domain:         st.domain,
		Name:           st.name,
		Options:        st.options,
		Delivery:       st.delivery,
		ReplaceTimeout: st.replaceTimeout,
		Logger:         log,
		Recorder:       recorder,
	})
	if err != nil {
		return err
	}

	workdir, err := os.Getwd()
	if err != nil {
		workdir = "/"
	}
	ctx := context.Background()
	primary, exitCode, err := svc.Arbitrate(ctx, os.Args, workdir)
	if err != nil {
		if st.options.Has(kdbusaddons.NoExitOnFailure) {
			log.Error("registration failed, continuing without the bus name", slog.Any("error", err))
			return nil
		}
		return err
	}
	if !primary {
		log.Info("forwarded to the running instance", slog.Int("exit_code", exitCode))
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	}

	return serve(ctx, svc, st, log)
}

// serve runs the owning instance until a quit request or signal.
func serve(ctx context.Context, svc *kdbusaddons.Service, st daemonSettings, log *slog.Logger) error {
	defer svc.Unregister()

	var httpSrv *http.Server
	if st.httpListen != "" {
		srv, err := kdbusaddons.NewHTTPServer(st.httpListen, st.httpBasePath, svc)
		if err != nil {
			return err
		}
		httpSrv = srv
		log.Info("http api listening", slog.String("addr", st.httpListen))
	}

	if q := svc.Events(); q != nil {
		go func() {
			for e := range q {
				log.Info("activation received", slog.String("kind", e.Kind()))
			}
		}()
	} else {
		svc.OnEvent(func(e kdbusaddons.Event) {
			log.Info("activation received", slog.String("kind", e.Kind()))
		})
	}
	if tok := svc.StartupToken(); tok != "" {
		log.Debug("startup token present", slog.Int("length", len(tok)))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	log.Info("serving activations", slog.String("service", svc.Name()))
	select {
	case <-svc.QuitRequested():
		log.Info("quit requested over the bus")
	case sig := <-sigCh:
		log.Info("signal received", slog.String("signal", sig.String()))
	case <-ctx.Done():
	}

	if httpSrv != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shCtx)
	}
	return nil
}
