package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/avezhov/gutenberg-qa/internal/infrastructure/resilience"
)

// Bus publishes workflow lifecycle events. The offline flow runner announces
// ingestion and session changes; the API process subscribes so it can reload
// the active strategy without a restart.
type Bus struct {
	conn          *nats.Conn
	subjectPrefix string
	executor      *resilience.Executor
}

type Options struct {
	ConnectTimeout     time.Duration
	ReconnectWait      time.Duration
	MaxReconnects      int
	ResilienceExecutor *resilience.Executor
}

func New(url, subjectPrefix string) (*Bus, error) {
	return NewWithOptions(url, subjectPrefix, Options{})
}

func NewWithOptions(url, subjectPrefix string, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	if subjectPrefix == "" {
		subjectPrefix = "ragflow"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("gutenberg-qa"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:          conn,
		subjectPrefix: subjectPrefix,
		executor:      options.ResilienceExecutor,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

type worksIngestedEvent struct {
	Works  int `json:"works"`
	Chunks int `json:"chunks"`
}

type sessionUpdatedEvent struct {
	Revision int `json:"revision"`
}

func (b *Bus) PublishWorksIngested(ctx context.Context, works, chunks int) error {
	return b.publish(ctx, b.subjectPrefix+".works-ingested", worksIngestedEvent{Works: works, Chunks: chunks})
}

func (b *Bus) PublishSessionUpdated(ctx context.Context, revision int) error {
	return b.publish(ctx, b.subjectPrefix+".session.updated", sessionUpdatedEvent{Revision: revision})
}

func (b *Bus) publish(ctx context.Context, subject string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := b.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}
	if b.executor != nil {
		return b.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	}
	return call(ctx)
}

// SubscribeSessionUpdated blocks until ctx is canceled, invoking handler
// with the published revision for every session change.
func (b *Bus) SubscribeSessionUpdated(ctx context.Context, handler func(context.Context, int) error) error {
	subject := b.subjectPrefix + ".session.updated"
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		var event sessionUpdatedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("bad_session_updated_event", "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event.Revision); err != nil {
			slog.Error("session_updated_handler_failed", "revision", event.Revision, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
