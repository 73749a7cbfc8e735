package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"voxelsculpt.ai/internal/persistence/indexdb"
	persistlog "voxelsculpt.ai/internal/persistence/log"
	"voxelsculpt.ai/internal/persistence/r2s3"
	"voxelsculpt.ai/internal/sim/editor"
	"voxelsculpt.ai/internal/sim/mesher"
	"voxelsculpt.ai/internal/sim/terrain"
	"voxelsculpt.ai/internal/sim/tuning"
	"voxelsculpt.ai/internal/transport/observer"
	"voxelsculpt.ai/internal/transport/ws"
)

type options struct {
	DataDir        string
	DisableDB      bool
	DisableEditLog bool
	EnablePprof    bool
}

type app struct {
	tune tuning.Tuning
	opts options
	log  *log.Logger

	hub     *observer.Hub
	mgr     *terrain.Manager
	editor  *editor.Editor
	editLog *persistlog.EditLogger
	index   *indexdb.SQLiteIndex
	mirror  *r2s3.Mirror
}

func main() {
	var (
		addr           = flag.String("addr", ":8080", "http listen address")
		configDir      = flag.String("configs", "./configs", "config directory")
		tuningPath     = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir        = flag.String("data", "./data", "runtime data directory")
		disableDB      = flag.Bool("disable_db", false, "disable the sqlite edit index")
		disableEditLog = flag.Bool("disable_edit_log", false, "disable the compressed edit log")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, tune, options{
		DataDir:        *dataDir,
		DisableDB:      *disableDB,
		DisableEditLog: *disableEditLog,
		EnablePprof:    envBool("VS_ENABLE_PPROF_HTTP", false),
	}, logger)
	if err != nil {
		logger.Fatalf("init: %v", err)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.editor.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		cfg := tune.Terrain()
		logger.Printf("grid=%v chunk=%v mesher=%s", cfg.GridSize.ToArray(), cfg.ChunkSize.ToArray(), tune.Mesher)
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})

	err = g.Wait()
	a.Close()
	if err != nil {
		logger.Printf("server stopped: %v", err)
		os.Exit(1)
	}
	logger.Printf("bye")
}

func newApp(ctx context.Context, tune tuning.Tuning, opts options, logger *log.Logger) (*app, error) {
	a := &app{tune: tune, opts: opts, log: logger}
	a.hub = observer.NewHub(tune.ObserverQueue, logger)

	var gen terrain.MeshGenerator = mesher.SurfaceNets{IsoLevel: tune.IsoLevel}
	if tune.Mesher == "none" {
		gen = mesher.Null{}
	}
	mgr, err := terrain.New(tune.Terrain(), gen, a.hub)
	if err != nil {
		return nil, err
	}
	a.mgr = mgr

	deps := editor.Deps{Logger: logger}
	if !opts.DisableEditLog {
		a.editLog = persistlog.NewEditLogger(opts.DataDir)
		deps.EditLog = a.editLog

		mirror, err := openMirror(ctx, opts.DataDir, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		if mirror != nil {
			a.mirror = mirror
			a.editLog.OnFileClosed(mirror.Enqueue)
		}
	}

	idx, err := openIndex(opts.DataDir, opts.DisableDB)
	if err != nil {
		a.Close()
		return nil, err
	}
	if idx != nil {
		a.index = idx
		deps.Index = idx
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
	}

	a.editor = editor.New(editor.Config{InboxSize: tune.InboxSize}, mgr, deps)
	return a, nil
}

func (a *app) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		writeMetrics(rw, a.editor, a.hub, a.index, a.mirror)
	})

	obsSrv := observer.NewServer(a.hub, a.editor, a.index, a.log)
	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())
	mux.HandleFunc("/v1/ws", ws.NewServer(a.editor, ws.Options{
		EditRateHz: a.tune.EditRateHz,
		EditBurst:  a.tune.EditBurst,
	}, a.log).Handler())

	if a.opts.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

// Close flushes the edit log, hands its last file to the mirror and drains
// the index. Safe to call more than once.
func (a *app) Close() {
	if a.editLog != nil {
		if err := a.editLog.Close(); err != nil {
			a.log.Printf("close edit log: %v", err)
		}
	}
	if a.mirror != nil {
		a.mirror.Close()
	}
	if a.index != nil {
		st := a.index.Stats()
		if err := a.index.Close(); err != nil {
			a.log.Printf("close index: %v", err)
		}
		if st.DropTotal > 0 {
			a.log.Printf("index dropped %d edits under backlog", st.DropTotal)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
