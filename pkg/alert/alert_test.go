package alert

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookSendSignsPayload(t *testing.T) {
	const secret = "topsecret"
	var gotSig string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature-256")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, secret)
	n := &Notification{Title: "AI Brief", NewsCount: 3, RepoCount: 2, TopScore: 12.5}
	if err := wh.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
	if !strings.Contains(string(gotBody), `"news_count":3`) {
		t.Errorf("payload missing news count: %s", gotBody)
	}
	if !strings.Contains(string(gotBody), `"event":"brief.published"`) {
		t.Errorf("payload missing event type: %s", gotBody)
	}
	if !strings.Contains(string(gotBody), `"sent_at":`) {
		t.Errorf("payload missing sent_at: %s", gotBody)
	}
}

func TestWebhookSendNoSecretNoSignature(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature-256")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "")
	if err := wh.Send(context.Background(), &Notification{Title: "x"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotSig != "" {
		t.Errorf("unexpected signature header %q without a secret", gotSig)
	}
}

func TestWebhookSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "")
	if err := wh.Send(context.Background(), &Notification{Title: "x"}); err == nil {
		t.Error("expected error for 502 response")
	}
}

func TestSlackSendPostsBlocks(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlack(srv.URL)
	n := &Notification{Title: "AI Brief 2026-08-28", NewsCount: 5, RepoCount: 3, TopScore: 20.0}
	if err := s.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(gotBody, "AI Brief 2026-08-28") {
		t.Errorf("payload missing title: %s", gotBody)
	}
	if !strings.Contains(gotBody, "blocks") {
		t.Errorf("payload missing blocks: %s", gotBody)
	}
}

type stubNotifier struct {
	name string
	err  error
	sent int
}

func (s *stubNotifier) Name() string { return s.name }
func (s *stubNotifier) Send(ctx context.Context, n *Notification) error {
	s.sent++
	return s.err
}

func TestManagerBroadcast(t *testing.T) {
	ok := &stubNotifier{name: "ok"}
	bad := &stubNotifier{name: "bad", err: errors.New("boom")}
	m := NewManager([]Notifier{ok, bad})

	if !m.HasNotifiers() {
		t.Error("HasNotifiers should be true")
	}

	err := m.Broadcast(context.Background(), &Notification{Title: "x"})
	if err == nil {
		t.Fatal("expected joined error from failing notifier")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("error %q should name the failing notifier", err)
	}
	if ok.sent != 1 || bad.sent != 1 {
		t.Errorf("sends = %d/%d, want both notifiers attempted", ok.sent, bad.sent)
	}
}

func TestManagerEmpty(t *testing.T) {
	m := NewManager(nil)
	if m.HasNotifiers() {
		t.Error("HasNotifiers should be false with no notifiers")
	}
	if err := m.Broadcast(context.Background(), &Notification{}); err != nil {
		t.Errorf("empty broadcast returned %v", err)
	}
}
