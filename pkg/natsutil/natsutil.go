// Package natsutil is a thin typed layer over core NATS: JSON payloads and
// OpenTelemetry trace context carried in message headers.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Conn is what the helpers need from *nats.Conn.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	RequestMsgWithContext(ctx context.Context, m *nats.Msg) (*nats.Msg, error)
}

var _ Conn = (*nats.Conn)(nil)

// headers lets the OTel propagator read and write NATS message headers.
type headers struct{ msg *nats.Msg }

var _ propagation.TextMapCarrier = headers{}

func (h headers) Get(key string) string { return h.msg.Header.Get(key) }

func (h headers) Set(key, val string) {
	if h.msg.Header == nil {
		h.msg.Header = nats.Header{}
	}
	h.msg.Header.Set(key, val)
}

func (h headers) Keys() []string {
	var keys []string
	for k := range h.msg.Header {
		keys = append(keys, k)
	}
	return keys
}

func newMsg(ctx context.Context, subject string, v any) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("natsutil: encode %s: %w", subject, err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, headers{msg})
	return msg, nil
}

func contextOf(msg *nats.Msg) context.Context {
	return otel.GetTextMapPropagator().Extract(context.Background(), headers{msg})
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Publish sends v as JSON on subject.
func Publish[T any](ctx context.Context, nc Conn, subject string, v T) error {
	msg, err := newMsg(ctx, subject, v)
	if err != nil {
		return err
	}
	return nc.PublishMsg(msg)
}

// Subscribe decodes each message on subject into T and calls handler with
// the sender's trace context. Undecodable messages are logged and skipped.
func Subscribe[T any](nc Conn, subject string, logger *slog.Logger, handler func(context.Context, T)) (*nats.Subscription, error) {
	logger = orDefault(logger)
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			logger.Warn("natsutil: skipping undecodable message", "subject", msg.Subject, "err", err)
			return
		}
		handler(contextOf(msg), v)
	})
}

// Handle serves request/reply on subject. An empty payload decodes as the
// zero Req. The reply goes to the message's inbox when there is one.
func Handle[Req, Resp any](nc Conn, subject string, logger *slog.Logger, handler func(context.Context, Req) Resp) (*nats.Subscription, error) {
	logger = orDefault(logger)
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var req Req
		if len(msg.Data) != 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				logger.Warn("natsutil: skipping undecodable request", "subject", msg.Subject, "err", err)
				return
			}
		}
		ctx := contextOf(msg)
		resp := handler(ctx, req)
		if msg.Reply == "" {
			return
		}
		if err := Publish(ctx, nc, msg.Reply, resp); err != nil {
			logger.Warn("natsutil: reply failed", "subject", msg.Subject, "err", err)
		}
	})
}

// Request sends req and decodes the reply. ctx without a deadline gets
// nats.DefaultTimeout.
func Request[Req, Resp any](ctx context.Context, nc Conn, subject string, req Req) (Resp, error) {
	var resp Resp
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nats.DefaultTimeout)
		defer cancel()
	}
	msg, err := newMsg(ctx, subject, req)
	if err != nil {
		return resp, err
	}
	in, err := nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return resp, fmt.Errorf("natsutil: request %s: %w", subject, err)
	}
	if err := json.Unmarshal(in.Data, &resp); err != nil {
		return resp, fmt.Errorf("natsutil: decode reply from %s: %w", subject, err)
	}
	return resp, nil
}
