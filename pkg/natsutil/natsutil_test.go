package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

type testMsg struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// fakeConn records published messages and keeps subscription callbacks so
// tests can deliver messages by hand.
type fakeConn struct {
	published []*nats.Msg
	handlers  map[string]nats.MsgHandler
	reply     *nats.Msg
	err       error
	deadline  bool
}

func newFakeConn() *fakeConn { return &fakeConn{handlers: map[string]nats.MsgHandler{}} }

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, m)
	return nil
}

func (f *fakeConn) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.handlers[subj] = cb
	return &nats.Subscription{Subject: subj}, nil
}

func (f *fakeConn) RequestMsgWithContext(ctx context.Context, m *nats.Msg) (*nats.Msg, error) {
	_, f.deadline = ctx.Deadline()
	f.published = append(f.published, m)
	return f.reply, f.err
}

func TestHeaders_CarryTraceContext(t *testing.T) {
	msg := nats.NewMsg("carenav.index.rebuild")
	h := headers{msg}
	if h.Get("traceparent") != "" || len(h.Keys()) != 0 {
		t.Fatal("fresh message has headers")
	}
	h.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	if got := msg.Header.Get("traceparent"); got == "" || h.Get("traceparent") != got {
		t.Fatalf("traceparent = %q", got)
	}
	if keys := h.Keys(); len(keys) != 1 {
		t.Fatalf("keys = %v", keys)
	}

	bare := headers{&nats.Msg{}}
	bare.Set("tracestate", "carenav=1")
	if bare.Get("tracestate") != "carenav=1" {
		t.Fatal("Set on a message without headers was lost")
	}
}

func TestPublish(t *testing.T) {
	nc := newFakeConn()
	if err := Publish(context.Background(), nc, "carenav.test", testMsg{Name: "a", Value: 1}); err != nil {
		t.Fatal(err)
	}
	if len(nc.published) != 1 || nc.published[0].Subject != "carenav.test" {
		t.Fatalf("published %+v", nc.published)
	}
	var got testMsg
	if err := json.Unmarshal(nc.published[0].Data, &got); err != nil || got.Value != 1 {
		t.Fatalf("payload %s", nc.published[0].Data)
	}
}

func TestSubscribe_DropsMalformed(t *testing.T) {
	nc := newFakeConn()
	var got []testMsg
	if _, err := Subscribe(nc, "s", nil, func(_ context.Context, v testMsg) { got = append(got, v) }); err != nil {
		t.Fatal(err)
	}
	cb := nc.handlers["s"]
	cb(&nats.Msg{Subject: "s", Data: []byte("{invalid json")})
	cb(&nats.Msg{Subject: "s", Data: []byte(`{"name":"ok","value":2}`)})
	if len(got) != 1 || got[0].Name != "ok" {
		t.Fatalf("handler saw %+v", got)
	}
}

func TestHandle_RepliesToInbox(t *testing.T) {
	nc := newFakeConn()
	_, err := Handle(nc, "double", nil, func(_ context.Context, in testMsg) testMsg {
		return testMsg{Name: in.Name, Value: in.Value * 2}
	})
	if err != nil {
		t.Fatal(err)
	}
	nc.handlers["double"](&nats.Msg{Subject: "double", Reply: "_INBOX.1", Data: []byte(`{"name":"x","value":21}`)})
	if len(nc.published) != 1 || nc.published[0].Subject != "_INBOX.1" {
		t.Fatalf("published %+v", nc.published)
	}
	var out testMsg
	if err := json.Unmarshal(nc.published[0].Data, &out); err != nil || out.Value != 42 {
		t.Fatalf("reply %s", nc.published[0].Data)
	}

	// No inbox: handler runs, nothing is published.
	nc.handlers["double"](&nats.Msg{Subject: "double"})
	if len(nc.published) != 1 {
		t.Fatalf("unexpected publish without reply subject")
	}
}

func TestRequest(t *testing.T) {
	nc := newFakeConn()
	nc.reply = &nats.Msg{Data: []byte(`{"name":"r","value":7}`)}
	got, err := Request[testMsg, testMsg](context.Background(), nc, "req", testMsg{Name: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != 7 {
		t.Fatalf("got %+v", got)
	}
	if !nc.deadline {
		t.Error("request should carry a deadline")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	nc.err = errors.New("no responders")
	if _, err := Request[testMsg, testMsg](ctx, nc, "req", testMsg{}); err == nil {
		t.Fatal("expected error")
	}
}
