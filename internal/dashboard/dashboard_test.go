package dashboard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pinsync/pinsync/internal/remote"
	"github.com/pinsync/pinsync/internal/schema"
	pinsync "github.com/pinsync/pinsync/internal/sync"
)

type fakeController struct {
	mu        sync.Mutex
	status    schema.SyncStatus
	settings  schema.SyncSettings
	triggers  int
	enableErr error
}

func (f *fakeController) Status() schema.SyncStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status.Clone()
}

func (f *fakeController) Settings() schema.SyncSettings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakeController) Trigger() {
	f.mu.Lock()
	f.triggers++
	f.mu.Unlock()
}

func (f *fakeController) Enable(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enableErr != nil {
		return f.enableErr
	}
	f.settings.Enabled = true
	return nil
}

func (f *fakeController) Disable(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings.Enabled = false
	return nil
}

func startTestServer(t *testing.T, ctrl Controller) (*Server, *Client) {
	t.Helper()
	srv, err := NewServer(&Config{
		Port:       0,
		Controller: ctrl,
		Logger:     log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, NewClient(srv.GetAddr())
}

func TestNewServer_RequiresController(t *testing.T) {
	if _, err := NewServer(&Config{}); err == nil {
		t.Error("NewServer() without controller should fail")
	}
}

func TestControlMessages(t *testing.T) {
	ctrl := &fakeController{settings: schema.DefaultSyncSettings()}
	msg := "last failure"
	ctrl.status.Error = &msg
	_, client := startTestServer(t, ctrl)
	ctx := context.Background()

	st, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if st.ErrorMessage() != "last failure" {
		t.Errorf("Status() = %+v", st)
	}

	if err := client.Trigger(ctx); err != nil {
		t.Fatalf("Trigger() failed: %v", err)
	}
	ctrl.mu.Lock()
	triggers := ctrl.triggers
	ctrl.mu.Unlock()
	if triggers != 1 {
		t.Errorf("triggers = %d, want 1", triggers)
	}

	settings, err := client.Enable(ctx)
	if err != nil || !settings.Enabled {
		t.Errorf("Enable() = %+v, %v", settings, err)
	}
	settings, err = client.Disable(ctx)
	if err != nil || settings.Enabled {
		t.Errorf("Disable() = %+v, %v", settings, err)
	}
}

func TestControlMessages_Errors(t *testing.T) {
	ctrl := &fakeController{enableErr: errors.New("disk full")}
	srv, client := startTestServer(t, ctrl)

	if _, err := client.Enable(context.Background()); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Enable() = %v, want disk full", err)
	}

	if _, err := client.Send(context.Background(), "BOGUS"); err == nil {
		t.Error("unknown message type should fail")
	}

	resp, err := http.Get("http://" + srv.GetAddr() + "/api/messages")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/messages = %d", resp.StatusCode)
	}

	resp, err = http.Post("http://"+srv.GetAddr()+"/api/messages", "application/json", bytes.NewBufferString("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body = %d, want 400", resp.StatusCode)
	}
}

func TestMessages_RejectsCrossSiteRequests(t *testing.T) {
	ctrl := &fakeController{}
	srv, _ := startTestServer(t, ctrl)
	endpoint := "http://" + srv.GetAddr() + "/api/messages"

	tests := []struct {
		name        string
		contentType string
		origin      string
		want        int
	}{
		{"text/plain", "text/plain", "", http.StatusUnsupportedMediaType},
		{"form", "application/x-www-form-urlencoded", "", http.StatusUnsupportedMediaType},
		{"missing content type", "", "", http.StatusUnsupportedMediaType},
		{"foreign origin", "application/json", "https://evil.example", http.StatusForbidden},
		{"loopback origin", "application/json; charset=utf-8", "http://localhost:3000", http.StatusOK},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(`{"type":"ENABLE_SYNC"}`))
		if err != nil {
			t.Fatal(err)
		}
		if tt.contentType != "" {
			req.Header.Set("Content-Type", tt.contentType)
		}
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, resp.StatusCode, tt.want)
		}
		if enabled := ctrl.Settings().Enabled; enabled != (tt.want == http.StatusOK) {
			t.Errorf("%s: enabled = %v after request", tt.name, enabled)
		}
	}
}

func TestTriggerReturnsAccepted(t *testing.T) {
	srv, _ := startTestServer(t, &fakeController{})
	resp, err := http.Post("http://"+srv.GetAddr()+"/api/messages", "application/json",
		strings.NewReader(`{"type":"TRIGGER_SYNC"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("TRIGGER_SYNC = %d, want 202", resp.StatusCode)
	}
}

func TestWatch_ReceivesStatusChanges(t *testing.T) {
	ctrl := &fakeController{}
	srv, client := startTestServer(t, ctrl)

	updates := make(chan schema.SyncStatus, 4)
	srv.Forward(updates)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan schema.SyncStatus, 8)
	go func() { _ = client.Watch(ctx, func(st schema.SyncStatus) { got <- st }) }()

	// First message is the current status.
	select {
	case st := <-got:
		if st.IsSyncing {
			t.Errorf("initial status = %+v", st)
		}
	case <-ctx.Done():
		t.Fatal("no initial status")
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	updates <- schema.SyncStatus{IsSyncing: true}
	select {
	case st := <-got:
		if !st.IsSyncing {
			t.Errorf("broadcast status = %+v, want syncing", st)
		}
	case <-ctx.Done():
		t.Fatal("broadcast never arrived")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := NewMetrics()
	srv, err := NewServer(&Config{Port: 0, Controller: &fakeController{}, Metrics: metrics, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	defer srv.Stop()

	now := time.Now()
	metrics.ObservePass(&pinsync.Report{
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
		Pushed:     []pinsync.Outcome{{Phase: pinsync.PhasePush, Kind: pinsync.KindPin, ID: "p1"}},
	}, nil)
	metrics.ObservePass(nil, remote.ErrAuth)

	resp, err := http.Get("http://" + srv.GetAddr() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("/health = %s", body)
	}

	resp, err = http.Get("http://" + srv.GetAddr() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		`pinsync_sync_passes_total{result="ok"} 1`,
		`pinsync_sync_passes_total{result="auth"} 1`,
		`pinsync_sync_records_total{kind="pin",outcome="applied",phase="push"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}

func TestPassResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{pinsync.ErrSyncDisabled, "disabled"},
		{pinsync.ErrOffline, "offline"},
		{remote.ErrAuth, "auth"},
		{errors.New("x"), "error"},
	}
	for _, tt := range tests {
		if got := passResult(tt.err); got != tt.want {
			t.Errorf("passResult(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestClient_DaemonUnavailable(t *testing.T) {
	c := NewClient("127.0.0.1:1")
	if _, err := c.Status(context.Background()); !errors.Is(err, ErrDaemonUnavailable) {
		t.Errorf("Status() = %v, want ErrDaemonUnavailable", err)
	}
}
