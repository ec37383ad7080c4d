package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/resilience"
)

// Subjects binds the three dispatch lanes. Large files ride a subject of
// their own so a stalled multi-hour extraction cannot starve the small lane.
type Subjects struct {
	Ingest     string
	EmbedBatch string
	LargeFile  string
}

type Queue struct {
	conn     *nats.Conn
	subjects Subjects
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url string, subjects Subjects) (*Queue, error) {
	return NewWithOptions(url, subjects, Options{})
}

func NewWithOptions(url string, subjects Subjects, options Options) (*Queue, error) {
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
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("knowledge-ingest"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subjects: subjects,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishIngest(ctx context.Context, msg ports.IngestMessage) error {
	return q.publish(ctx, q.subjects.Ingest, msg)
}

func (q *Queue) PublishEmbedBatch(ctx context.Context, msg ports.EmbedBatchMessage) error {
	return q.publish(ctx, q.subjects.EmbedBatch, msg)
}

func (q *Queue) PublishLargeFile(ctx context.Context, msg ports.LargeFileMessage) error {
	return q.publish(ctx, q.subjects.LargeFile, msg)
}

func (q *Queue) SubscribeIngest(ctx context.Context, handler func(context.Context, ports.IngestMessage) error) error {
	return subscribe(ctx, q, q.subjects.Ingest, "workers", handler)
}

func (q *Queue) SubscribeEmbedBatch(ctx context.Context, handler func(context.Context, ports.EmbedBatchMessage) error) error {
	return subscribe(ctx, q, q.subjects.EmbedBatch, "workers", handler)
}

func (q *Queue) SubscribeLargeFile(ctx context.Context, handler func(context.Context, ports.LargeFileMessage) error) error {
	return subscribe(ctx, q, q.subjects.LargeFile, "large-workers", handler)
}

func (q *Queue) publish(ctx context.Context, subject string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish."+subject, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func subscribe[T any](ctx context.Context, q *Queue, subject, group string, handler func(context.Context, T) error) error {
	sub, err := q.conn.QueueSubscribe(subject, group, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var decoded T
		if err := json.Unmarshal(msg.Data, &decoded); err != nil {
			log.Printf("drop undecodable message on %s: %v", subject, err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, decoded); err != nil {
			log.Printf("handler error on %s: %v", subject, err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
