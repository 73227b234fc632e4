package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carenav/carenav/engine/domain"
	"github.com/carenav/carenav/engine/semantic"
	"github.com/carenav/carenav/pkg/natsutil"
)

// Default subjects.
const (
	SubjectRebuild = "carenav.index.rebuild"
	SubjectRebuilt = "carenav.index.rebuilt"
)

// RebuildRequest asks a serving process to rebuild its index.
type RebuildRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RebuildReply answers a RebuildRequest.
type RebuildReply struct {
	OK          bool   `json:"ok"`
	Message     string `json:"message"`
	Documents   int    `json:"documents,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Messages reported to users after a rebuild attempt.
const (
	MsgRebuilt        = "✅ Database refreshed successfully!"
	MsgRebuildFailed  = "❌ Error refreshing database"
	MsgRebuildRunning = "⏳ A refresh is already running"
)

// RebuildWithReply runs Rebuild and describes the index that rebuild left
// serving, not whatever a later rebuild may have swapped in since.
func (m *Manager) RebuildWithReply(ctx context.Context) (RebuildReply, error) {
	ix, err := m.rebuild(ctx)
	return replyFor(ix, err), err
}

func replyFor(ix *semantic.Index, err error) RebuildReply {
	if errors.Is(err, domain.ErrRebuildInProgress) {
		return RebuildReply{Message: MsgRebuildRunning}
	}
	if err != nil {
		msg := MsgRebuildFailed + ": " + err.Error()
		if ix == nil {
			return RebuildReply{Message: msg}
		}
		return RebuildReply{Message: msg + " (previous index still serving)"}
	}
	return RebuildReply{OK: true, Message: MsgRebuilt, Documents: ix.Len(), Fingerprint: ix.Meta().Fingerprint}
}

// ServeRebuilds answers RebuildRequests on subject. timeout bounds each
// rebuild.
func (m *Manager) ServeRebuilds(nc natsutil.Conn, subject string, timeout time.Duration) (*nats.Subscription, error) {
	if subject == "" {
		subject = SubjectRebuild
	}
	return natsutil.Handle(nc, subject, m.logger, func(ctx context.Context, req RebuildRequest) RebuildReply {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		m.logger.Info("rebuild requested", "subject", subject, "reason", req.Reason)
		reply, _ := m.RebuildWithReply(ctx)
		return reply
	})
}

// Announcer publishes Rebuilt events on subject. Publish failures are
// logged; they never fail a rebuild.
func Announcer(nc natsutil.Conn, subject string, logger *slog.Logger) func(context.Context, Rebuilt) {
	if subject == "" {
		subject = SubjectRebuilt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, ev Rebuilt) {
		if err := natsutil.Publish(ctx, nc, subject, ev); err != nil {
			logger.Warn("announce rebuild failed", "subject", subject, "err", err)
		}
	}
}
