// Package editor serialises terrain edits. One Editor owns one terrain
// manager; at runtime only the Run goroutine touches it.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voxelsculpt.ai/internal/sim/sdf"
	"voxelsculpt.ai/internal/sim/terrain"
)

var (
	ErrBusy     = errors.New("editor inbox full")
	ErrStopped  = errors.New("editor stopped")
	ErrBadShape = errors.New("bad shape")
)

// EditWriter receives one entry per applied edit. Implementations must not
// block the editor for long.
type EditWriter interface {
	WriteEdit(EditLogEntry) error
}

type Config struct {
	InboxSize int
}

type Deps struct {
	Logger  *log.Logger
	EditLog EditWriter // optional
	Index   EditWriter // optional
}

type Request struct {
	Spec sdf.Spec
	Resp chan Result // buffered (1)
}

type Result struct {
	EditID string
	Report terrain.Report
	Err    error
}

type Editor struct {
	mgr  *terrain.Manager
	deps Deps

	inbox     chan Request
	overlayCh chan chan Overlay
	done      chan struct{}

	// Owned by the goroutine applying edits.
	seq uint64

	editsTotal  atomic.Uint64
	failTotal   atomic.Uint64
	lastApplyUS atomic.Int64
}

// Metrics is safe to read from any goroutine.
type Metrics struct {
	Edits       uint64 `json:"edits"`
	Failed      uint64 `json:"failed"`
	QueueDepth  int    `json:"queue_depth"`
	LastApplyUS int64  `json:"last_apply_us"`
}

func (e *Editor) Metrics() Metrics {
	return Metrics{
		Edits:       e.editsTotal.Load(),
		Failed:      e.failTotal.Load(),
		QueueDepth:  len(e.inbox),
		LastApplyUS: e.lastApplyUS.Load(),
	}
}

func New(cfg Config, mgr *terrain.Manager, deps Deps) *Editor {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Editor{
		mgr:       mgr,
		deps:      deps,
		inbox:     make(chan Request, cfg.InboxSize),
		overlayCh: make(chan chan Overlay),
		done:      make(chan struct{}),
	}
}

// Terrain returns the immutable grid configuration.
func (e *Editor) Terrain() terrain.Config { return e.mgr.Config() }

func (e *Editor) Inbox() chan<- Request { return e.inbox }

// Run applies queued edits one at a time until ctx is cancelled.
func (e *Editor) Run(ctx context.Context) error {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-e.inbox:
			res := e.Apply(req.Spec)
			if req.Resp != nil {
				req.Resp <- res
			}
		case ch := <-e.overlayCh:
			ch <- e.CurrentOverlay()
		}
	}
}

// Submit queues an edit and waits for its result. It fails fast with ErrBusy
// when the inbox is full.
func (e *Editor) Submit(ctx context.Context, spec sdf.Spec) (Result, error) {
	req := Request{Spec: spec, Resp: make(chan Result, 1)}
	select {
	case <-e.done:
		return Result{}, ErrStopped
	default:
	}
	select {
	case e.inbox <- req:
	default:
		return Result{}, ErrBusy
	}
	select {
	case res := <-req.Resp:
		return res, nil
	case <-e.done:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Overlay asks the run loop for the current diagnostic overlay.
func (e *Editor) Overlay(ctx context.Context) (Overlay, error) {
	ch := make(chan Overlay, 1)
	select {
	case e.overlayCh <- ch:
	case <-e.done:
		return Overlay{}, ErrStopped
	case <-ctx.Done():
		return Overlay{}, ctx.Err()
	}
	select {
	case ov := <-ch:
		return ov, nil
	case <-ctx.Done():
		return Overlay{}, ctx.Err()
	}
}

// Apply runs one edit synchronously. Not safe to call concurrently with Run.
func (e *Editor) Apply(spec sdf.Spec) Result {
	shape, err := spec.Build()
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %v", ErrBadShape, err)}
	}

	start := time.Now()
	rep, err := e.mgr.UpdateChunks(shape)
	dur := time.Since(start)

	e.seq++
	e.editsTotal.Add(1)
	e.lastApplyUS.Store(dur.Microseconds())
	res := Result{EditID: uuid.NewString(), Report: rep, Err: err}

	entry := newEditLogEntry(e.seq, res, spec, shape, e.mgr.Config(), dur)
	if e.deps.EditLog != nil {
		if werr := e.deps.EditLog.WriteEdit(entry); werr != nil {
			e.deps.Logger.Printf("edit log: %v", werr)
		}
	}
	if e.deps.Index != nil {
		if werr := e.deps.Index.WriteEdit(entry); werr != nil {
			e.deps.Logger.Printf("edit index: %v", werr)
		}
	}
	if err != nil {
		e.failTotal.Add(1)
		e.deps.Logger.Printf("edit %s failed: %v", res.EditID, err)
	}
	return res
}
