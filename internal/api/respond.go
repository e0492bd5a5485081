package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/pipeline"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/internal/task"
	"github.com/sells-group/catalog-cli/internal/tier"
)

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
	Step    string   `json:"step,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, body)
}

// classify maps domain errors to a status and response body.
func classify(err error) (int, errorBody) {
	var verr *tier.ValidationError
	var serr *pipeline.StepError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, errorBody{Error: "invalid price tiers", Details: verr.Errors}
	case errors.As(err, &serr):
		body := errorBody{Error: serr.Error(), Step: string(serr.Step)}
		if errors.As(serr.Err, &verr) {
			body.Details = verr.Errors
		}
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, store.ErrNotFound), errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found"}
	case errors.Is(err, task.ErrTaskActive):
		return http.StatusConflict, errorBody{Error: "item already has an active task"}
	case errors.Is(err, task.ErrRetryNotAllowed):
		return http.StatusConflict, errorBody{Error: "retry is only allowed for failed tasks"}
	case errors.Is(err, task.ErrNotActive):
		return http.StatusConflict, errorBody{Error: "task is not active"}
	case errors.Is(err, pipeline.ErrCancelled):
		return http.StatusConflict, errorBody{Error: "task was cancelled"}
	case errors.Is(err, pipeline.ErrShuttingDown):
		return http.StatusServiceUnavailable, errorBody{Error: "server is shutting down"}
	case errors.Is(err, tier.ErrInvalidQuantity):
		return http.StatusBadRequest, errorBody{Error: "quantity must be at least 1"}
	}
	return http.StatusInternalServerError, errorBody{Error: "internal error"}
}

// decode reads a JSON body, keeping numbers exact so tier prices are not
// rounded through float64.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}
