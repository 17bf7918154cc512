package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CoinPull/internal/usecase"
	"CoinPull/pkg/config"
	xhttp "CoinPull/pkg/http"
	pkgkafka "CoinPull/pkg/kafka"
	applogger "CoinPull/pkg/logger"
)

// App owns the long-running parts of the service: the HTTP API, the
// object-event consumer and the schedule.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	handler    pkgkafka.MessageHandler
	scheduler  *usecase.Scheduler
	closers    []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// New creates an App. consumer, handler and scheduler may be nil.
func New(cfg *config.Config, l *applogger.Logger, httpHandler xhttp.Handler, consumer *pkgkafka.Consumer, handler pkgkafka.MessageHandler, scheduler *usecase.Scheduler) *App {
	if l == nil {
		l = applogger.Nop()
	}
	srv := xhttp.NewServer(httpHandler, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
	)
	return &App{cfg: cfg, l: l, httpServer: srv, consumer: consumer, handler: handler, scheduler: scheduler}
}

// OnClose registers a resource closed last during shutdown, in reverse order.
func (a *App) OnClose(name string, c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, namedCloser{name: name, c: c})
	}
}

// Run starts every component and blocks until a signal or a fatal server error.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.consumer != nil && a.handler != nil {
		a.consumer.RegisterHandler(a.handler)
		a.consumer.WithConsumerHook(pkgkafka.NewLoggingHook(a.l))
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.handler.Topic()))
	}
	if a.scheduler != nil {
		a.scheduler.Start(ctx)
	}
	errc := a.httpServer.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		a.l.Info("shutdown signal received", applogger.String("signal", sig.String()))
	case err, ok := <-errc:
		if ok && err != nil {
			runErr = err
		}
	}
	cancel()
	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		firstErr = err
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.consumer != nil && a.handler != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}
	a.l.Info("shutdown complete")
	return firstErr
}
