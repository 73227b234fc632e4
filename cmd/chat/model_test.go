package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/carenav/carenav/engine/lifecycle"
)

type fakeBackend struct {
	answer     reply
	err        error
	rebuild    lifecycle.RebuildReply
	examples   []string
	gotID      string
	gotMessage string
}

func (f *fakeBackend) Ask(_ context.Context, id, message string) (reply, error) {
	f.gotID, f.gotMessage = id, message
	return f.answer, f.err
}

func (f *fakeBackend) Rebuild(context.Context) (lifecycle.RebuildReply, error) {
	return f.rebuild, nil
}

func (f *fakeBackend) Examples(context.Context) ([]string, error) { return f.examples, nil }

func sized(t *testing.T, api backend) model {
	t.Helper()
	m := newModel(api, "session-1", time.Second)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(model)
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func TestSendAppendsBothTurns(t *testing.T) {
	api := &fakeBackend{answer: reply{Text: "SPECIALIST: Cardiologist", Specialist: "Cardiologist"}}
	m := sized(t, api)
	m.input.SetValue("  chest pain  ")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil || !m.busy {
		t.Fatal("expected a pending request")
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}
	m, _ = update(t, m, cmd())

	if api.gotMessage != "chest pain" || api.gotID != "session-1" {
		t.Errorf("sent %q with id %q", api.gotMessage, api.gotID)
	}
	if len(m.transcript) != 2 || m.transcript[0].role != roleUser || m.transcript[1].role != roleBot {
		t.Fatalf("transcript = %+v", m.transcript)
	}
	if m.busy || !strings.Contains(m.status, "Cardiologist") {
		t.Errorf("busy=%v status=%q", m.busy, m.status)
	}
	if !strings.Contains(m.View(), "SPECIALIST: Cardiologist") {
		t.Error("answer not rendered")
	}
}

func TestEnterIgnoredWhileBusyOrEmpty(t *testing.T) {
	m := sized(t, &fakeBackend{})
	if _, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Error("empty input sent a request")
	}
	m.busy = true
	m.input.SetValue("rash")
	if _, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Error("second request while busy")
	}
}

func TestErrorShownAsSystemTurn(t *testing.T) {
	m := sized(t, &fakeBackend{})
	m, _ = update(t, m, answerMsg{err: errors.New("query too short")})
	if len(m.transcript) != 1 || m.transcript[0].role != roleSystem ||
		!strings.Contains(m.transcript[0].text, "query too short") {
		t.Fatalf("transcript = %+v", m.transcript)
	}
}

func TestRebuildKey(t *testing.T) {
	api := &fakeBackend{rebuild: lifecycle.RebuildReply{OK: true, Message: lifecycle.MsgRebuilt}}
	m := sized(t, api)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	if cmd == nil {
		t.Fatal("ctrl+r issued no request")
	}
	m, _ = update(t, m, cmd())
	if len(m.transcript) != 1 || m.transcript[0].text != lifecycle.MsgRebuilt {
		t.Fatalf("transcript = %+v", m.transcript)
	}
}

func TestTabCyclesExamples(t *testing.T) {
	m := sized(t, &fakeBackend{})
	m, _ = update(t, m, examplesMsg{examples: []string{"fever", "rash"}})
	for _, want := range []string{"fever", "rash", "fever"} {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
		if m.input.Value() != want {
			t.Fatalf("input = %q, want %q", m.input.Value(), want)
		}
	}
}

func TestClearTranscript(t *testing.T) {
	m := sized(t, &fakeBackend{})
	m.push(roleUser, "hello")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	if len(m.transcript) != 0 {
		t.Fatal("transcript not cleared")
	}
}

func TestViewBeforeSize(t *testing.T) {
	if got := newModel(&fakeBackend{}, "s", time.Second).View(); got != "Loading..." {
		t.Fatalf("View = %q", got)
	}
}

// --- apiClient ---

func TestAPIClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/chat":
			if strings.Contains(readAll(r), `"message":"x"`) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"query too short"}`))
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"id":"s","text":"unavailable","degraded":true}`))
		case "/api/index/rebuild":
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"ok":false,"message":"busy"}`))
		case "/api/examples":
			w.Write([]byte(`{"examples":["fever"]}`))
		}
	}))
	defer srv.Close()
	c := newAPIClient(srv.URL+"/", time.Second)
	ctx := context.Background()

	r, err := c.Ask(ctx, "s", "chest pain")
	if err != nil || !r.Degraded || r.Text != "unavailable" {
		t.Fatalf("Ask degraded = %+v, %v", r, err)
	}
	if _, err := c.Ask(ctx, "s", "x"); err == nil || err.Error() != "query too short" {
		t.Fatalf("Ask rejected err = %v", err)
	}
	if rr, err := c.Rebuild(ctx); err != nil || rr.OK || rr.Message != "busy" {
		t.Fatalf("Rebuild = %+v, %v", rr, err)
	}
	if ex, err := c.Examples(ctx); err != nil || len(ex) != 1 {
		t.Fatalf("Examples = %v, %v", ex, err)
	}
}

func readAll(r *http.Request) string {
	b, _ := io.ReadAll(r.Body)
	return string(b)
}
