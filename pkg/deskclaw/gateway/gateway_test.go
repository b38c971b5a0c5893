package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/diskscan"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/store"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/tasks"
)

// fakeBackend answers "collect" asynchronously through a real executor and
// echoes anything else.
type fakeBackend struct {
	tasks *tasks.Executor
	disk  *diskscan.Service
}

func newFakeBackend(t *testing.T, disk diskscan.Config) *fakeBackend {
	t.Helper()
	ex := tasks.New(tasks.DefaultConfig(), nil)
	t.Cleanup(func() { _ = ex.Close(context.Background()) })
	return &fakeBackend{tasks: ex, disk: diskscan.New(disk, nil)}
}

func (f *fakeBackend) HandleMessage(_ context.Context, text string, sink tasks.Sink) string {
	if text != "collect" {
		return "echo: " + text
	}
	_, err := f.tasks.Submit("collect", "collecting", func(context.Context) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return "Collected 3 files.", nil
	}, sink)
	if err != nil {
		return err.Error()
	}
	return "Collecting in the background."
}

func (f *fakeBackend) Tasks() *tasks.Executor  { return f.tasks }
func (f *fakeBackend) Disk() *diskscan.Service { return f.disk }

func (f *fakeBackend) Transcript(context.Context, int) ([]store.Message, error) {
	return []store.Message{{ID: 1, Role: store.RoleUser, Content: "hi"}}, nil
}

func (f *fakeBackend) Actions(context.Context, int) ([]store.Action, error) {
	return []store.Action{{ID: 1, Action: "lock_screen", Source: "gateway"}}, nil
}

func newTestGateway(t *testing.T, cfg Config, disk diskscan.Config) (*Gateway, *httptest.Server) {
	t.Helper()
	g := New(newFakeBackend(t, disk), cfg, "test", nil)
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = g.Stop(context.Background())
	})
	return g, srv
}

func doJSON(t *testing.T, method, target, token, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, target, err)
		}
	}
	return resp.StatusCode
}

func TestChatAndTasks(t *testing.T) {
	_, srv := newTestGateway(t, Config{}, diskscan.DefaultConfig())

	var chat ChatResponse
	if code := doJSON(t, "POST", srv.URL+"/api/chat", "", `{"message":"open chrome"}`, &chat); code != 200 {
		t.Fatalf("chat status = %d", code)
	}
	if chat.Reply != "echo: open chrome" || chat.ID == "" {
		t.Errorf("chat = %+v", chat)
	}

	var errResp errorResponse
	if code := doJSON(t, "POST", srv.URL+"/api/chat", "", `{"message":"  "}`, &errResp); code != 400 {
		t.Errorf("blank chat status = %d", code)
	}
	if errResp.Error.Code != 400 || errResp.Error.Message == "" {
		t.Errorf("error body = %+v", errResp)
	}

	doJSON(t, "POST", srv.URL+"/api/chat", "", `{"message":"collect"}`, &chat)
	var list struct {
		Tasks []tasks.Record `json:"tasks"`
	}
	doJSON(t, "GET", srv.URL+"/api/tasks", "", "", &list)
	if len(list.Tasks) != 1 || list.Tasks[0].Key != "collect" {
		t.Fatalf("tasks = %+v", list.Tasks)
	}

	var rec tasks.Record
	if code := doJSON(t, "GET", srv.URL+"/api/tasks/"+list.Tasks[0].ID, "", "", &rec); code != 200 || rec.ID != list.Tasks[0].ID {
		t.Errorf("task lookup = %d %+v", code, rec)
	}
	if code := doJSON(t, "GET", srv.URL+"/api/tasks/nope", "", "", nil); code != 404 {
		t.Errorf("missing task status = %d", code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, srv := newTestGateway(t, Config{AuthToken: "s3cret"}, diskscan.DefaultConfig())

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"health is public", "/health", "", 200},
		{"missing token", "/api/tasks", "", 401},
		{"wrong token", "/api/tasks", "nope", 401},
		{"good token", "/api/tasks", "s3cret", 200},
		{"transcript", "/api/transcript?limit=5", "s3cret", 200},
		{"actions", "/api/actions", "s3cret", 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := doJSON(t, "GET", srv.URL+tt.path, tt.token, "", nil); got != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, got, tt.want)
			}
		})
	}
}

func TestDiskscanRoutes(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "docs", "report.txt"), []byte("q3"), 0o644); err != nil {
		t.Fatal(err)
	}
	secret := filepath.Join(root, "vault")
	disk := diskscan.Config{Enabled: true, MaxDepth: 5, MaxResults: 10, BlockedPaths: []string{secret}}
	_, srv := newTestGateway(t, Config{}, disk)

	q := url.QueryEscape
	tests := []struct {
		name string
		path string
		want int
	}{
		{"status", "/api/diskscan/status", 200},
		{"browse", "/api/diskscan/browse?path=" + q(root), 200},
		{"info", "/api/diskscan/info?path=" + q(filepath.Join(root, "docs", "report.txt")), 200},
		{"search", "/api/diskscan/search?path=" + q(root) + "&pattern=*.txt", 200},
		{"blocked", "/api/diskscan/browse?path=" + q(secret), 403},
		{"missing", "/api/diskscan/browse?path=" + q(filepath.Join(root, "nope")), 404},
		{"blank", "/api/diskscan/browse", 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := doJSON(t, "GET", srv.URL+tt.path, "", "", nil); got != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, got, tt.want)
			}
		})
	}

	var res diskscan.SearchResult
	doJSON(t, "GET", srv.URL+"/api/diskscan/search?path="+q(root)+"&pattern=*.txt", "", "", &res)
	if res.ResultCount != 1 {
		t.Errorf("search results = %+v", res)
	}
}

func TestDiskscanDisabledIsForbidden(t *testing.T) {
	_, srv := newTestGateway(t, Config{}, diskscan.DefaultConfig())
	if got := doJSON(t, "GET", srv.URL+"/api/diskscan/roots", "", "", nil); got != 403 {
		t.Errorf("roots while disabled = %d, want 403", got)
	}
}

func TestWebSocketPushesResults(t *testing.T) {
	_, srv := newTestGateway(t, Config{}, diskscan.DefaultConfig())

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for registration before triggering work.
	deadline := time.Now().Add(2 * time.Second)
	for {
		var health map[string]any
		doJSON(t, "GET", srv.URL+"/health", "", "", &health)
		if health["ws_clients"] == float64(1) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var chat ChatResponse
	doJSON(t, "POST", srv.URL+"/api/chat", "", `{"message":"collect"}`, &chat)

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Type == EventResult {
			if ev.ID != chat.ID || ev.Text != "Collected 3 files." {
				t.Errorf("result event = %+v, want id %s", ev, chat.ID)
			}
			return
		}
		if ev.Type != EventTask || ev.Task == nil {
			t.Errorf("unexpected event %+v", ev)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	_, srv := newTestGateway(t, Config{CORSOrigins: []string{"http://panel.local"}}, diskscan.DefaultConfig())

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/chat", nil)
	req.Header.Set("Origin", "http://panel.local")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://panel.local" {
		t.Errorf("allow origin = %q", got)
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}
}

func TestIsLoopback(t *testing.T) {
	t.Parallel()

	for addr, want := range map[string]bool{
		"127.0.0.1:8085": true,
		"localhost:80":   true,
		"[::1]:9000":     true,
		":8085":          false,
		"0.0.0.0:8085":   false,
		"10.0.0.5:8085":  false,
	} {
		if got := isLoopback(addr); got != want {
			t.Errorf("isLoopback(%q) = %v, want %v", addr, got, want)
		}
	}
}
