package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"workflowengine/src/guard"
	"workflowengine/src/pipeline"
)

// WorkflowTrigger starts an out-of-schedule review for a workflow.
type WorkflowTrigger interface {
	TriggerWorkflow(ctx context.Context, workflowID uint) error
}

func StartServer(port string, trigger WorkflowTrigger) {
	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write error")
		}
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Post("/workflows/{workflowID}/trigger", triggerHandler(trigger))

	// Graceful server
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}

// triggerHandler starts a manual review. Unlike the scheduler's silent skip,
// a review already in flight is reported back as a 409.
func triggerHandler(trigger WorkflowTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "workflowID"), 10, 32)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid workflow id"})
			return
		}
		workflowID := uint(id)

		switch err := trigger.TriggerWorkflow(r.Context(), workflowID); {
		case err == nil:
			writeJSON(w, http.StatusAccepted, map[string]interface{}{
				"workflow_id": workflowID,
				"status":      "accepted",
			})
		case errors.Is(err, guard.ErrAlreadyRunning):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "a review is already running for this workflow"})
		case errors.Is(err, pipeline.ErrWorkflowNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "workflow not found"})
		default:
			logger.WithError(err).WithField("workflow_id", workflowID).
				Error("manual trigger failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response body")
	}
}
