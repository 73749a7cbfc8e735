package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voxelsculpt.ai/internal/observerproto"
	"voxelsculpt.ai/internal/persistence/indexdb"
	"voxelsculpt.ai/internal/sim/editor"
	"voxelsculpt.ai/internal/sim/terrain"
)

const (
	pongWait  = 60 * time.Second
	pingEvery = 20 * time.Second
)

// OverlaySource is satisfied by *editor.Editor.
type OverlaySource interface {
	Terrain() terrain.Config
	Overlay(ctx context.Context) (editor.Overlay, error)
}

type Server struct {
	hub   *Hub
	edits OverlaySource
	index *indexdb.SQLiteIndex // optional
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, edits OverlaySource, index *indexdb.SQLiteIndex, logger *log.Logger) *Server {
	return &Server{
		hub:   hub,
		edits: edits,
		index: index,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 256 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		ov, err := s.edits.Overlay(ctx)
		if err != nil {
			http.Error(rw, "editor unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}

		cfg := s.edits.Terrain()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldParams: observerproto.WorldParams{
				GridSize:  cfg.GridSize.ToArray(),
				ChunkSize: cfg.ChunkSize.ToArray(),
			},
			Overlay: ov,
			Chunks:  s.hub.Chunks(),
		}
		if s.index != nil {
			st := s.index.Stats()
			resp.Index = &st
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		id, out := s.hub.Subscribe(sub.SkipReplay)
		defer s.hub.Unsubscribe(id)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Observers rarely send data frames; pongs keep the read side alive.
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		// Writer goroutine.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			ping := time.NewTicker(pingEvery)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						_ = conn.Close()
						return
					}
				case b, ok := <-out:
					if !ok {
						// Evicted by the hub.
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"), time.Now().Add(time.Second))
						_ = conn.Close()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop: observers only send control frames; drain until close.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
