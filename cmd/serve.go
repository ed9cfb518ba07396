package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/review"
	"github.com/deadonfilm/deadonfilm/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	Long:  "Serves the staging review workflow over HTTP so a frontend can list drafts, approve or reject them, and commit runs.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(st store.Store) http.Handler {
	wf := review.NewWorkflow(st)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", handleListRuns(st))
		r.Get("/runs/{runID}", handleGetRun(st))
		r.Post("/runs/{runID}/commit", handleCommitRun(wf))

		r.Get("/staging", handleListStaging(st))
		r.Get("/staging/{stagingID}", handleGetStaging(st))
		r.Post("/staging/{stagingID}/approve", handleApprove(wf))
		r.Post("/staging/{stagingID}/reject", handleReject(wf))
		r.Post("/staging/{stagingID}/edit", handleEdit(wf))

		r.Get("/subjects/{personID}", handleGetSubject(st))
	})

	return r
}

func handleListRuns(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 20)
		runs, err := st.ListRuns(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	}
}

func handleGetRun(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := st.GetRun(r.Context(), chi.URLParam(r, "runID"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, eris.New("run not found"))
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func handleCommitRun(wf *review.Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reviewer string `json:"reviewer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reviewer == "" {
			writeError(w, http.StatusBadRequest, eris.New("reviewer is required"))
			return
		}

		result, err := wf.Commit(r.Context(), chi.URLParam(r, "runID"), req.Reviewer)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"committed":  result.Committed,
			"person_ids": result.PersonIDs,
		})
	}
}

func handleListStaging(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses, err := parseStatuses(splitQuery(r, "status"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		records, err := st.ListStaging(r.Context(), store.StagingFilter{
			RunID:    r.URL.Query().Get("run"),
			Statuses: statuses,
			Limit:    queryInt(r, "limit", 100),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": records})
	}
}

func handleGetStaging(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := st.GetStagingRecord(r.Context(), chi.URLParam(r, "stagingID"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, eris.New("staging record not found"))
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleApprove(wf *review.Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reviewer string `json:"reviewer"`
			Notes    string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reviewer == "" {
			writeError(w, http.StatusBadRequest, eris.New("reviewer is required"))
			return
		}

		id := chi.URLParam(r, "stagingID")
		if err := wf.Approve(r.Context(), id, req.Reviewer, req.Notes); err != nil {
			writeError(w, transitionStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(model.StagingApproved)})
	}
}

func handleReject(wf *review.Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reviewer string `json:"reviewer"`
			Reason   string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reviewer == "" {
			writeError(w, http.StatusBadRequest, eris.New("reviewer is required"))
			return
		}

		id := chi.URLParam(r, "stagingID")
		if err := wf.Reject(r.Context(), id, req.Reviewer, req.Reason); err != nil {
			writeError(w, transitionStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(model.StagingRejected)})
	}
}

func handleEdit(wf *review.Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reviewer string           `json:"reviewer"`
			Notes    string           `json:"notes"`
			Edits    model.FieldEdits `json:"edits"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reviewer == "" {
			writeError(w, http.StatusBadRequest, eris.New("reviewer is required"))
			return
		}

		id := chi.URLParam(r, "stagingID")
		if err := wf.Edit(r.Context(), id, req.Reviewer, req.Edits, req.Notes); err != nil {
			writeError(w, transitionStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(model.StagingEdited)})
	}
}

func handleGetSubject(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		personID, err := strconv.Atoi(chi.URLParam(r, "personID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.New("person ID must be an integer"))
			return
		}

		subj, err := st.GetSubject(r.Context(), personID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if subj == nil {
			writeError(w, http.StatusNotFound, eris.New("subject not found"))
			return
		}
		writeJSON(w, http.StatusOK, subj)
	}
}

// transitionStatus maps review errors to HTTP codes. Illegal state moves
// are client errors, everything else is a 500.
func transitionStatus(err error) int {
	var te *review.TransitionError
	if eris.As(err, &te) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func splitQuery(r *http.Request, key string) []string {
	vals := r.URL.Query()[key]
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
