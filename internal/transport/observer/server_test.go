package observer

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"

	"voxelsculpt.ai/internal/observerproto"
	"voxelsculpt.ai/internal/sim/editor"
	"voxelsculpt.ai/internal/sim/terrain"
)

type fakeOverlay struct{ ov editor.Overlay }

func (f fakeOverlay) Terrain() terrain.Config {
	return terrain.Config{
		GridSize:  terrain.Vec3i{X: 2, Y: 1, Z: 2},
		ChunkSize: terrain.Vec3i{X: 4, Y: 4, Z: 4},
	}
}

func (f fakeOverlay) Overlay(context.Context) (editor.Overlay, error) { return f.ov, nil }

func newTestServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	s := NewServer(h, fakeOverlay{ov: editor.Overlay{Edits: 3}}, nil, log.New(io.Discard, "", 0))
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/ws", s.WSHandler())
	mux.HandleFunc("/v1/observer/bootstrap", s.BootstrapHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBootstrap(t *testing.T) {
	h := quietHub(8)
	_, _ = h.Spawn(terrain.Vec3i{}, mgl32.Vec3{})
	srv := newTestServer(t, h)

	resp, err := http.Get(srv.URL + "/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var b observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.WorldParams.GridSize != [3]int{2, 1, 2} || b.Chunks != 1 || b.Overlay.Edits != 3 || b.Index != nil {
		t.Fatalf("bootstrap=%+v", b)
	}

	post, err := http.Post(srv.URL+"/v1/observer/bootstrap", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status=%d", post.StatusCode)
	}
}

func TestWS_ReplayThenLive(t *testing.T) {
	h := quietHub(8)
	_, _ = h.Spawn(terrain.Vec3i{}, mgl32.Vec3{})
	srv := newTestServer(t, h)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	read := func() observerproto.ChunkSpawnMsg {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m observerproto.ChunkSpawnMsg
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		return m
	}
	if m := read(); m.Type != observerproto.TypeSpawn || m.Grid != [3]int{0, 0, 0} {
		t.Fatalf("replay=%+v", m)
	}

	// Wait until the hub has registered the subscriber before spawning live.
	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	_, _ = h.Spawn(terrain.Vec3i{X: 1}, mgl32.Vec3{4, 0, 0})
	if m := read(); m.Grid != [3]int{1, 0, 0} {
		t.Fatalf("live=%+v", m)
	}
}

func TestWS_RejectsBadSubscribe(t *testing.T) {
	srv := newTestServer(t, quietHub(8))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.WriteJSON(map[string]string{"type": "HELLO"})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.2:5000":  false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}
