package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/internal/tier"
)

type itemResponse struct {
	Item *model.Item           `json:"item"`
	Task *model.BackgroundTask `json:"task"`
}

type snapshotResponse struct {
	*model.ItemSnapshot
	Task *model.BackgroundTask `json:"task"`
}

type batchRequest struct {
	Items     []model.ItemPayload `json:"items"`
	BatchSize int                 `json:"batch_size"`
}

type tiersRequest struct {
	Tiers []model.RawTier `json:"tiers"`
}

type quoteRequest struct {
	ItemID    string           `json:"item_id"`
	Tiers     []model.RawTier  `json:"tiers"`
	Quantity  int64            `json:"quantity"`
	BasePrice *decimal.Decimal `json:"base_price"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	var payload model.ItemPayload
	if !decode(w, r, &payload) {
		return
	}
	if payload.Base.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "base.name is required"})
		return
	}

	item, err := s.pipeline.CreateItem(r.Context(), payload)
	switch {
	case item == nil:
		writeError(w, r, err)
	case err != nil:
		// The base record exists but its task could not start.
		status, body := classify(err)
		writeJSON(w, status, map[string]any{"item": item, "error": body.Error})
	default:
		writeJSON(w, http.StatusAccepted, itemResponse{Item: item, Task: s.pipeline.TaskStatus(item.ID)})
	}
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var payload model.ItemPayload
	if !decode(w, r, &payload) {
		return
	}
	if err := s.pipeline.UpdateItem(r.Context(), id, payload); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := s.store.GetItem(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{Item: item, Task: s.pipeline.TaskStatus(id)})
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := store.Snapshot(r.Context(), s.store, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{ItemSnapshot: snap, Task: s.pipeline.TaskStatus(id)})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t := s.pipeline.TaskStatus(chi.URLParam(r, "id"))
	if t == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) clearTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.pipeline.ClearTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) retryTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var payload model.ItemPayload
	if !decode(w, r, &payload) {
		return
	}
	if err := s.pipeline.Retry(r.Context(), id, payload); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.TaskStatus(id))
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.pipeline.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) createBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "items must not be empty"})
		return
	}
	writeJSON(w, http.StatusOK, s.batch.Run(r.Context(), req.Items, req.BatchSize))
}

func (s *Server) validateTiers(w http.ResponseWriter, r *http.Request) {
	var req tiersRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.tiers.Validate(req.Tiers))
}

// quote prices a quantity either against submitted tiers or against an
// item's stored tiers and base price.
func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decode(w, r, &req) {
		return
	}

	if req.ItemID != "" {
		item, err := s.store.GetItem(r.Context(), req.ItemID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		q, err := s.tiers.Quote(r.Context(), item.ID, req.Quantity, item.BasePrice)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
		return
	}

	res := s.tiers.Validate(req.Tiers)
	if !res.IsValid {
		writeError(w, r, &tier.ValidationError{Errors: res.Errors})
		return
	}
	base := decimal.Zero
	if req.BasePrice != nil {
		base = *req.BasePrice
	}
	q, err := tier.Resolve(req.Quantity, res.Normalized, base)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) taskStats(w http.ResponseWriter, r *http.Request) {
	lookback := s.lookback
	if v := r.URL.Query().Get("lookback_mins"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "lookback_mins must be a non-negative integer"})
			return
		}
		lookback = n
	}
	writeJSON(w, http.StatusOK, s.stats.Collect(lookback))
}
