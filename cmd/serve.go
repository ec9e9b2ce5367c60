package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loomlabs/loom/internal/graph"
	"github.com/loomlabs/loom/internal/model"
	"github.com/loomlabs/loom/internal/weave"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(e),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(e *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/records", func(w http.ResponseWriter, req *http.Request) {
		var recs []model.RawRecord
		if err := json.NewDecoder(req.Body).Decode(&recs); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		n, err := weave.IngestRecords(req.Context(), e.Store, recs)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int{"ingested": n})
	})

	r.Post("/weave", func(w http.ResponseWriter, req *http.Request) {
		summary, err := e.Coordinator.Run(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, summary)
	})

	r.Get("/entities", func(w http.ResponseWriter, req *http.Request) {
		limit := 0
		if l := req.URL.Query().Get("limit"); l != "" {
			parsed, err := strconv.Atoi(l)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = parsed
		}

		query := req.URL.Query().Get("q")
		if query == "" {
			entities, err := e.Store.ListEntities(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if limit > 0 && len(entities) > limit {
				entities = entities[:limit]
			}
			writeJSON(w, http.StatusOK, entities)
			return
		}
		matches, err := e.Graph.SearchEntities(req.Context(), query, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, matches)
	})

	r.Get("/entities/{id}/graph", func(w http.ResponseWriter, req *http.Request) {
		depth := 2
		if d := req.URL.Query().Get("depth"); d != "" {
			parsed, err := strconv.Atoi(d)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid depth")
				return
			}
			depth = parsed
		}

		view, err := e.Graph.EntityGraph(req.Context(), chi.URLParam(req, "id"), depth)
		if err != nil {
			if eris.Is(err, graph.ErrEntityNotFound) {
				writeError(w, http.StatusNotFound, "entity not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, view)
	})

	r.Post("/entities/{keep}/merge/{absorb}", func(w http.ResponseWriter, req *http.Request) {
		merged, err := e.Graph.MergeEntities(req.Context(), chi.URLParam(req, "keep"), chi.URLParam(req, "absorb"))
		if err != nil {
			if eris.Is(err, graph.ErrEntityNotFound) {
				writeError(w, http.StatusNotFound, "entity not found")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, merged)
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		stats, err := e.Graph.Statistics(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	r.Get("/patterns", func(w http.ResponseWriter, req *http.Request) {
		patterns, err := e.Store.ListPatterns(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, patterns)
	})

	r.Get("/export", func(w http.ResponseWriter, req *http.Request) {
		export, err := e.Graph.Export(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, export)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
