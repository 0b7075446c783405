package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"cryptotrack-alerts/internal/alert"
	"cryptotrack-alerts/internal/lock"
	"cryptotrack-alerts/internal/types"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	noActiveAlertsMessage = "No active alerts to check"
)

// SweepResponse is the JSON body of POST /sweep.
type SweepResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	*types.SweepSummary
}

// Setup builds the router with the sweep trigger, metrics and health endpoints.
func Setup(runner alert.Runner, locker lock.Locker, gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/sweep", sweepHandler(runner, locker)).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)

	return router
}

func sweepHandler(runner alert.Runner, locker lock.Locker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := alert.RunLocked(r.Context(), runner, locker)
		switch {
		case errors.Is(err, lock.ErrHeld):
			setResponse(http.StatusConflict, SweepResponse{Status: StatusError, Message: err.Error()}, w)
			return
		case err != nil:
			log.Errorf("❌ Sweep request failed: %v", err)
			setResponse(http.StatusInternalServerError, SweepResponse{Status: StatusError, Message: err.Error()}, w)
			return
		}

		setResponse(http.StatusOK, SuccessResponse(summary), w)
	}
}

// SuccessResponse wraps a completed sweep.
func SuccessResponse(summary types.SweepSummary) SweepResponse {
	resp := SweepResponse{Status: StatusSuccess, SweepSummary: &summary}
	if summary.TotalChecked == 0 {
		resp.Message = noActiveAlertsMessage
	}
	return resp
}

func setResponse(statusCode int, response interface{}, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ListenAndServe serves handler on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Launching sweep, metrics and health endpoint on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server stopped")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
