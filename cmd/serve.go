package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/watch-research/internal/model"
	"github.com/sells-group/watch-research/internal/research"
	"github.com/sells-group/watch-research/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the research HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initResearch(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		router := buildRouter(ctx, env.Store, env.Orchestrator, cfg.Server.AllowedOrigins)
		err = startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
		router.Wait()
		return err
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// apiRouter is the HTTP surface plus the research runs it started.
type apiRouter struct {
	http.Handler
	runs *sync.WaitGroup
}

// Wait blocks until every background research run has returned.
func (a *apiRouter) Wait() { a.runs.Wait() }

// buildRouter wires the HTTP routes. Research runs are started in the
// background under ctx; a nil orchestrator accepts requests without running
// anything.
func buildRouter(ctx context.Context, st store.Store, orch *research.Orchestrator, origins []string) *apiRouter {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	h := &handlers{ctx: ctx, store: st, orch: orch, runs: &sync.WaitGroup{}}
	r.Route("/watches", func(r chi.Router) {
		r.Get("/", h.listWatches)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getWatch)
			r.Get("/valuations", h.listValuations)
			r.Get("/images", h.listImages)
			r.Get("/research-logs", h.listLogs)
			r.Post("/research", h.startResearch)
			r.Post("/research/{stage}", h.startResearch)
		})
	})
	return &apiRouter{Handler: r, runs: h.runs}
}

type handlers struct {
	ctx   context.Context
	store store.Store
	orch  *research.Orchestrator
	runs  *sync.WaitGroup
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// loadWatch writes a 404 or 500 and returns nil when the watch cannot be
// loaded.
func (h *handlers) loadWatch(w http.ResponseWriter, r *http.Request) *model.Watch {
	watch, err := h.store.GetWatch(r.Context(), chi.URLParam(r, "id"))
	switch {
	case eris.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "watch not found")
		return nil
	case err != nil:
		zap.L().Error("serve: load watch", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	return watch
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (h *handlers) listWatches(w http.ResponseWriter, r *http.Request) {
	watches, err := h.store.ListWatches(r.Context(), store.WatchFilter{
		UserID: r.URL.Query().Get("user_id"),
		Brand:  r.URL.Query().Get("brand"),
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		zap.L().Error("serve: list watches", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, watches)
}

func (h *handlers) getWatch(w http.ResponseWriter, r *http.Request) {
	if watch := h.loadWatch(w, r); watch != nil {
		writeJSON(w, http.StatusOK, watch)
	}
}

func (h *handlers) listValuations(w http.ResponseWriter, r *http.Request) {
	watch := h.loadWatch(w, r)
	if watch == nil {
		return
	}
	vals, err := h.store.ListValuations(r.Context(), watch.ID)
	if err != nil {
		zap.L().Error("serve: list valuations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, vals)
}

func (h *handlers) listImages(w http.ResponseWriter, r *http.Request) {
	watch := h.loadWatch(w, r)
	if watch == nil {
		return
	}
	imgs, err := h.store.ListWatchImages(r.Context(), watch.ID)
	if err != nil {
		zap.L().Error("serve: list images", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, imgs)
}

func (h *handlers) listLogs(w http.ResponseWriter, r *http.Request) {
	watch := h.loadWatch(w, r)
	if watch == nil {
		return
	}
	entries, err := h.store.ListResearchLogs(r.Context(), watch.ID, queryInt(r, "limit", 0))
	if err != nil {
		zap.L().Error("serve: list research logs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) startResearch(w http.ResponseWriter, r *http.Request) {
	var stages []model.Stage
	if name := chi.URLParam(r, "stage"); name != "" {
		stage, ok := model.ParseStage(name)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown stage %q", name))
			return
		}
		stages = []model.Stage{stage}
	}

	watch := h.loadWatch(w, r)
	if watch == nil {
		return
	}

	if h.orch != nil {
		h.runs.Add(1)
		go h.runResearch(watch.ID, stages)
	}

	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, string(s))
	}
	if len(names) == 0 {
		names = []string{"all"}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "accepted",
		"watch_id": watch.ID,
		"stages":   names,
	})
}

func (h *handlers) runResearch(watchID string, stages []model.Stage) {
	defer h.runs.Done()
	report, err := h.orch.Run(h.ctx, watchID, research.RunOptions{Stages: stages})
	if err != nil {
		zap.L().Error("serve: research run failed", zap.String("watch_id", watchID), zap.Error(err))
		return
	}
	zap.L().Info("serve: research run complete",
		zap.String("watch_id", watchID),
		zap.Bool("failed", report.Failed()),
	)
}

// startServer serves handler on port until ctx is cancelled. It returns
// once in-flight requests have drained or the shutdown timeout has passed.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	<-stopped
	return nil
}
