package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"ohisim.ai/internal/advisor"
	"ohisim.ai/internal/persistence/indexdb"
	"ohisim.ai/internal/persistence/snapshot"
	"ohisim.ai/internal/pipeline"
	"ohisim.ai/internal/sim/catalogs"
	"ohisim.ai/internal/sim/game"
	"ohisim.ai/internal/sim/rankings"
	"ohisim.ai/internal/sim/sessions"
	"ohisim.ai/internal/sim/tuning"
	"ohisim.ai/internal/transport/httpapi"
	"ohisim.ai/internal/transport/ws"
)

func main() {
	var (
		addr          = flag.String("addr", ":8080", "http listen address")
		configDir     = flag.String("configs", "./configs", "config directory")
		scenariosPath = flag.String("scenarios", "./configs/scenarios.yaml", "scenarios config path")
		tuningPath    = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		schemaPath    = flag.String("result_schema", "./schemas/result.schema.json", "simulation-result schema (empty to disable the gate)")
		dataDir       = flag.String("data", "./data", "runtime data directory")
		disableDB     = flag.Bool("disable_db", false, "disable the sqlite read model (also disables the admin REST API)")
		sourceDir     = flag.String("etl_source", "./data/source", "indicator source directory for the fill pipeline")
		maxSessions   = flag.Int("max_sessions", 256, "max concurrent game sessions")

		advisorURL      = flag.String("advisor_url", "", "AI backend base url (empty: local deterministic model)")
		advisorProvider = flag.String("advisor_provider", "local", "AI provider name reported in traces")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	scenarios, err := sessions.Load(*scenariosPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("scenarios not found (%s); using defaults", *scenariosPath)
			scenarios, _ = sessions.Load("")
		} else {
			logger.Fatalf("load scenarios: %v", err)
		}
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
	}

	advisorKey := strings.TrimSpace(os.Getenv("OHI_ADVISOR_API_KEY"))
	ai := advisor.NewClient(advisor.Config{
		BaseURL:  strings.TrimSpace(*advisorURL),
		APIKey:   advisorKey,
		Provider: *advisorProvider,
	}, tracerOrNil(idx), logger)

	var provider game.ResultProvider = ai
	if sp := strings.TrimSpace(*schemaPath); sp != "" {
		gated, err := advisor.NewValidatingProvider(ai, sp)
		if err != nil {
			logger.Fatalf("result schema: %v", err)
		}
		provider = gated
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Snapshot writer: SAVE instants and cadence snapshots land here.
	snapCh := make(chan game.SnapshotBlob, 8)

	mgr, err := sessions.NewManager(scenarios, sessions.Deps{
		Tuning:       tune,
		Catalogs:     cats,
		Provider:     provider,
		Advisor:      ai,
		DataDir:      *dataDir,
		SnapshotSink: snapCh,
		DB:           idx,
		FinalReport:  func(st game.GameState) any { return ai.RunFinalReport(st) },
		MaxSessions:  *maxSessions,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatalf("sessions: %v", err)
	}
	mgr.Start(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case blob := <-snapCh:
				path := filepath.Join(mgr.SessionDir(blob.SessionID), "saves",
					fmt.Sprintf("cycle_%04d.snap.zst", blob.Cycle))
				if err := snapshot.WriteSnapshot(path, snapshot.New(blob.SessionID, blob.Cycle, blob.State)); err != nil {
					logger.Printf("snapshot write: %v", err)
				}
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(mgr))

	var runner *pipeline.Runner
	var board *rankings.Board
	if idx != nil {
		runner = pipeline.NewRunner(idx, ai, *sourceDir, logger)
		board = rankings.NewBoard(idx, mgr, cats.Stages.Stages)
		token := strings.TrimSpace(os.Getenv("OHI_ADMIN_TOKEN"))
		if token == "" {
			logger.Printf("OHI_ADMIN_TOKEN empty; admin REST API is unauthenticated")
		}
		httpapi.NewServer(idx, runner, board, token, logger).Register(mux)
	} else {
		logger.Printf("admin REST API disabled (-disable_db)")
	}

	enableAdminHTTP := envBool("OHI_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("OHI_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only operator endpoints.
		mux.HandleFunc("/admin/v1/sessions", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"sessions": mgr.List()})
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			id := r.URL.Query().Get("session")
			sess, err := mgr.Get(id)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusNotFound)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			blob, err := sess.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			select {
			case snapCh <- blob:
			default:
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "cycle": blob.Cycle})
		})
	} else {
		logger.Printf("admin endpoints disabled (OHI_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(mgr, tune, cats, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
		mgr.Shutdown()
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	mgr.Wait()
}

func tracerOrNil(idx *indexdb.SQLiteIndex) advisor.Tracer {
	if idx == nil {
		return nil
	}
	return idx
}

func metricsHandler(mgr *sessions.Manager) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		list := mgr.List()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP ohisim_sessions Current number of game sessions.\n")
		fmt.Fprintf(rw, "# TYPE ohisim_sessions gauge\n")
		fmt.Fprintf(rw, "ohisim_sessions %d\n", len(list))

		fmt.Fprintf(rw, "# HELP ohisim_session_cycle Current cycle per session.\n")
		fmt.Fprintf(rw, "# TYPE ohisim_session_cycle gauge\n")
		for _, m := range list {
			fmt.Fprintf(rw, "ohisim_session_cycle{session=%q,country=%q,phase=%q} %d\n",
				m.SessionID, m.CountryISO, m.Phase, m.Cycle)
		}

		fmt.Fprintf(rw, "# HELP ohisim_session_score Composite maturity score per session.\n")
		fmt.Fprintf(rw, "# TYPE ohisim_session_score gauge\n")
		for _, m := range list {
			fmt.Fprintf(rw, "ohisim_session_score{session=%q,country=%q} %.3f\n",
				m.SessionID, m.CountryISO, m.Score)
		}

		fmt.Fprintf(rw, "# HELP ohisim_session_clients Connected clients per session.\n")
		fmt.Fprintf(rw, "# TYPE ohisim_session_clients gauge\n")
		for _, m := range list {
			fmt.Fprintf(rw, "ohisim_session_clients{session=%q} %d\n", m.SessionID, m.Clients)
		}

		fmt.Fprintf(rw, "# HELP ohisim_session_inbox_depth Action inbox backlog per session.\n")
		fmt.Fprintf(rw, "# TYPE ohisim_session_inbox_depth gauge\n")
		for _, m := range list {
			fmt.Fprintf(rw, "ohisim_session_inbox_depth{session=%q} %d\n", m.SessionID, m.InboxDepth)
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

func envBool(name string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
