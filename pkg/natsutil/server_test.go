package natsutil

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// connect starts an in-process server on a random port.
func connect(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(srv.Shutdown)

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(nc.Close)
	return nc
}

type indexEvent struct {
	Kind      string `json:"kind"`
	Documents int    `json:"documents"`
}

func TestServer_EventRoundTrip(t *testing.T) {
	nc := connect(t)

	got := make(chan indexEvent, 1)
	sub, err := Subscribe(nc, "carenav.index.events", nil, func(_ context.Context, ev indexEvent) {
		got <- ev
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	if err := Publish(context.Background(), nc, "carenav.index.events", indexEvent{Kind: "rebuild", Documents: 12}); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-got:
		if ev.Kind != "rebuild" || ev.Documents != 12 {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestServer_RequestReply(t *testing.T) {
	nc := connect(t)

	type rebuild struct{ Reason string }
	type outcome struct {
		OK     bool
		Reason string
	}
	sub, err := Handle(nc, "carenav.index.rebuild", nil, func(_ context.Context, r rebuild) outcome {
		return outcome{OK: r.Reason != "", Reason: r.Reason}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := Request[rebuild, outcome](ctx, nc, "carenav.index.rebuild", rebuild{Reason: "nightly"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.OK || resp.Reason != "nightly" {
		t.Fatalf("reply = %+v", resp)
	}
}

func TestServer_RequestWithoutResponder(t *testing.T) {
	nc := connect(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Request[struct{}, struct{}](ctx, nc, "carenav.nobody", struct{}{}); err == nil {
		t.Fatal("request without a responder succeeded")
	}
}
