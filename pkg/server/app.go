package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FlowScan/internal/domain/models"
	drepo "FlowScan/internal/domain/repository"
	"FlowScan/internal/middleware"
	"FlowScan/internal/service/ratelimit"
	"FlowScan/internal/usecase"
	pkgch "FlowScan/pkg/clickhouse"
	"FlowScan/pkg/config"
	xhttp "FlowScan/pkg/http"
	pkgkafka "FlowScan/pkg/kafka"
	applogger "FlowScan/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg      *config.Config
	log      *applogger.Logger
	stream   drepo.MarketStream
	pipeline *middleware.StreamPipeline
	governor *ratelimit.Governor
	orch     *usecase.Orchestrator
	gate     *usecase.AlertGate
	consumer *pkgkafka.Consumer
	auditH   pkgkafka.MessageHandler
	chClient *pkgch.Client

	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	stream drepo.MarketStream,
	pipeline *middleware.StreamPipeline,
	governor *ratelimit.Governor,
	orch *usecase.Orchestrator,
	gate *usecase.AlertGate,
	consumer *pkgkafka.Consumer,
	auditH pkgkafka.MessageHandler,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		stream:   stream,
		pipeline: pipeline,
		governor: governor,
		orch:     orch,
		gate:     gate,
		consumer: consumer,
		auditH:   auditH,
		chClient: chClient,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout.D(), a.cfg.Server.WriteTimeout.D(), a.cfg.Server.ShutdownTimeout.D()),
		xhttp.WithMetricsLogging(a.log, 500*time.Millisecond),
	)

	// Stream fan-in: provider websocket -> pipeline -> live book.
	if a.stream != nil && a.pipeline != nil {
		a.pipeline.Start(ctx)
		if err := a.stream.Start(ctx); err != nil {
			a.log.Error("stream start error", applogger.Error(err))
			return err
		}
		throttled := a.cfg.Stream.Throttled && a.governor != nil
		handler := func(ev models.StreamEvent) {
			if throttled {
				if err := a.governor.Acquire(ctx, 1); err != nil {
					return
				}
			}
			if err := a.pipeline.Process(ctx, ev); err != nil {
				a.log.Debug("stream event dropped", applogger.String("channel", ev.Channel), applogger.Error(err))
			}
		}
		for _, ch := range a.cfg.Stream.Channels {
			if err := a.stream.Subscribe(ctx, ch, handler); err != nil {
				a.log.Warn("subscribe error", applogger.String("channel", ch), applogger.Error(err))
			}
		}
		a.log.Info("stream started", applogger.Strings("channels", a.cfg.Stream.Channels))
	}

	// Scan loops and the dedup gate.
	a.orch.Start(ctx)
	go a.gate.Run(ctx, a.orch.Emissions())
	a.log.Info("scan modes started")

	// Audit consumer replays emitted alerts off the bus.
	if a.consumer != nil && a.auditH != nil {
		a.consumer.RegisterHandler(a.auditH)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("audit consumer started", applogger.String("topic", a.auditH.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.D())
	defer cancel()

	// Mode loops close the emissions channel; wait for the gate to drain.
	select {
	case <-a.gate.Done():
	case <-time.After(a.cfg.Server.ShutdownTimeout.D()):
		a.log.Warn("alert gate drain timed out")
	}

	if a.stream != nil {
		if err := a.stream.Close(); err != nil {
			a.log.Warn("stream close error", applogger.Error(err))
		}
	}
	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
