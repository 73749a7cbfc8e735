package main

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

	"github.com/gorilla/websocket"

	"voxelsculpt.ai/internal/observerproto"
	persistlog "voxelsculpt.ai/internal/persistence/log"
	"voxelsculpt.ai/internal/protocol"
	"voxelsculpt.ai/internal/sim/tuning"
)

func startApp(t *testing.T, opts options) (*app, *httptest.Server) {
	t.Helper()
	tune := tuning.Defaults()
	tune.GridSize = [3]int{2, 1, 2}
	tune.ChunkSize = [3]int{8, 8, 8}

	a, err := newApp(context.Background(), tune, opts, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = a.editor.Run(ctx) }()

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		a.Close()
	})
	return a, srv
}

func TestApp_EditFlowsToLogAndObserver(t *testing.T) {
	dir := t.TempDir()
	a, srv := startApp(t, options{DataDir: dir})

	_, obs := a.hub.Subscribe(true)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_ = conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version})
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}

	edit := `{"type":"EDIT","protocol_version":"1.0","id":"x","shape":{"kind":"SPHERE","center":[8,4,8],"radius":3}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(edit)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var res protocol.EditResultMsg
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("result: %v", err)
	}
	// The sphere straddles the x and z chunk borders: all four cells.
	if !res.OK || len(res.Touched) != 4 || len(res.Created) != 4 {
		t.Fatalf("result=%+v", res)
	}

	spawns, meshes := 0, 0
	for len(obs) > 0 {
		b := <-obs
		switch {
		case strings.Contains(string(b), `"type":"`+observerproto.TypeSpawn+`"`):
			spawns++
		case strings.Contains(string(b), `"type":"`+observerproto.TypeMesh+`"`):
			meshes++
		}
	}
	if spawns != 4 || meshes != 4 {
		t.Fatalf("observer got spawns=%d meshes=%d", spawns, meshes)
	}

	a.Close()

	files, err := persistlog.EditLogFiles(dir)
	if err != nil || len(files) == 0 {
		t.Fatalf("edit log files=%v err=%v", files, err)
	}
}

func TestApp_HealthMetricsBootstrap(t *testing.T) {
	_, srv := startApp(t, options{DataDir: t.TempDir(), DisableEditLog: true})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"voxelsculpt_edits_total 0", "voxelsculpt_chunks 0", "voxelsculpt_index_queue_depth"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}

	resp, err = http.Get(srv.URL + "/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer resp.Body.Close()
	var b observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.WorldParams.GridSize != [3]int{2, 1, 2} || len(b.Overlay.Cells) != 4 || b.Index == nil {
		t.Fatalf("bootstrap=%+v", b)
	}
}

func TestApp_DisableDB(t *testing.T) {
	a, _ := startApp(t, options{DataDir: t.TempDir(), DisableDB: true, DisableEditLog: true})
	if a.index != nil || a.editLog != nil {
		t.Fatalf("persistence not disabled: index=%v log=%v", a.index, a.editLog)
	}
}
