package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"voxelsculpt.ai/internal/protocol"
	"voxelsculpt.ai/internal/sim/editor"
	"voxelsculpt.ai/internal/sim/sdf"
	"voxelsculpt.ai/internal/sim/terrain"
)

// Editor is the part of *editor.Editor the transport needs.
type Editor interface {
	Terrain() terrain.Config
	Submit(ctx context.Context, spec sdf.Spec) (editor.Result, error)
}

type Options struct {
	// Per session token bucket; EditRateHz <= 0 means unlimited.
	EditRateHz float64
	EditBurst  int
}

type Server struct {
	editor Editor
	opts   Options
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(ed Editor, opts Options, logger *log.Logger) *Server {
	if opts.EditBurst <= 0 {
		opts.EditBurst = 1
	}
	return &Server{
		editor: ed,
		opts:   opts,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		limiter := s.newLimiter()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. Edits from one session are applied in the order sent.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeEdit {
				continue
			}
			var res protocol.EditResultMsg
			if limiter.Allow() {
				res = s.handleEdit(ctx, msg)
			} else {
				res = rateLimited(msg)
			}
			b, err := json.Marshal(res)
			if err != nil {
				s.log.Printf("session %s: encode result: %v", sessionID, err)
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
	}
}

func (s *Server) newLimiter() *rate.Limiter {
	if s.opts.EditRateHz <= 0 {
		return rate.NewLimiter(rate.Inf, s.opts.EditBurst)
	}
	return rate.NewLimiter(rate.Limit(s.opts.EditRateHz), s.opts.EditBurst)
}

func rateLimited(raw []byte) protocol.EditResultMsg {
	var ref struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &ref)
	return protocol.EditResultMsg{
		Type:            protocol.TypeEditResult,
		ProtocolVersion: protocol.Version,
		ID:              ref.ID,
		Code:            protocol.ErrRateLimited,
		Error:           "edit rate exceeded",
	}
}

func (s *Server) handleEdit(ctx context.Context, raw []byte) protocol.EditResultMsg {
	res := protocol.EditResultMsg{
		Type:            protocol.TypeEditResult,
		ProtocolVersion: protocol.Version,
	}
	msg, err := protocol.DecodeEdit(raw)
	res.ID = msg.ID
	if err != nil {
		res.Code = protocol.ErrProtoBadRequest
		res.Error = err.Error()
		return res
	}

	out, err := s.editor.Submit(ctx, msg.Shape)
	switch {
	case errors.Is(err, editor.ErrBusy):
		res.Code = protocol.ErrEditorBusy
		res.Error = err.Error()
		return res
	case err != nil:
		res.Code = protocol.ErrEditorStopped
		res.Error = err.Error()
		return res
	}

	res.EditID = out.EditID
	res.RangeMin = out.Report.RangeMin.ToArray()
	res.RangeMax = out.Report.RangeMax.ToArray()
	res.Touched = editor.Coords(out.Report.Touched)
	res.Created = editor.Coords(out.Report.Created)
	res.Voxels = out.Report.Voxels
	switch {
	case errors.Is(out.Err, editor.ErrBadShape):
		res.Code = protocol.ErrBadShape
		res.Error = out.Err.Error()
	case out.Err != nil:
		res.Code = protocol.ErrInternal
		res.Error = out.Err.Error()
	default:
		res.OK = true
	}
	return res
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	sessionID = uuid.NewString()
	cfg := s.editor.Terrain()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldParams: protocol.WorldParams{
			GridSize:  cfg.GridSize.ToArray(),
			ChunkSize: cfg.ChunkSize.ToArray(),
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}
	s.log.Printf("session %s: %s connected", sessionID, hello.ClientName)
	return sessionID, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
