// Package httpapi serves the operator endpoints of "whosout serve".
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"whosout/internal/domain"
	"whosout/internal/storage/sqlite"
)

// Trigger starts a run in the background and returns its id.
type Trigger func(kind string, date domain.Date, dryRun bool) (string, error)

type Handler struct {
	db      *sql.DB
	trigger Trigger
	log     logrus.FieldLogger
}

func NewHandler(db *sql.DB, trigger Trigger, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{db: db, trigger: trigger, log: log}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/runs", h.ListRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{kind:daily|weekly}", h.StartRun).Methods(http.MethodPost)
	r.HandleFunc("/runs/{id}", h.GetRun).Methods(http.MethodGet)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	counts, err := sqlite.CountByStatus(h.db)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "runs": counts})
}

// ListRuns expects ?limit={n} (optional, default 50).
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := sqlite.ListRuns(h.db, limit)
	if err != nil {
		h.log.WithError(err).Error("list runs")
		writeError(w, http.StatusInternalServerError, "could not read run journal")
		return
	}
	if runs == nil {
		runs = []sqlite.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := sqlite.GetRun(h.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.log.WithError(err).Error("get run")
		writeError(w, http.StatusInternalServerError, "could not read run journal")
		return
	}
	entries, err := sqlite.GetRunEntries(h.db, id)
	if err != nil {
		h.log.WithError(err).Error("get run entries")
		writeError(w, http.StatusInternalServerError, "could not read run journal")
		return
	}
	if entries == nil {
		entries = []sqlite.RunEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "entries": entries})
}

// StartRun expects ?date=YYYY-MM-DD (optional) and ?dry_run=true (optional).
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	q := r.URL.Query()

	var date domain.Date
	if v := q.Get("date"); v != "" {
		d, err := domain.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = d
	}
	dryRun, _ := strconv.ParseBool(q.Get("dry_run"))

	id, err := h.trigger(kind, date, dryRun)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.log.WithFields(logrus.Fields{"run_id": id, "kind": kind}).Info("run triggered over http")
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("http server stopped")
	return nil
}
