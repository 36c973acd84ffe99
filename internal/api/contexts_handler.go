package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dataspect/dataspect/internal/contexts"
	"github.com/dataspect/dataspect/internal/domain"

	"github.com/google/uuid"
)

// ContextService is the slice of the context service the handler needs.
type ContextService interface {
	Create(ctx context.Context, req contexts.CreateRequest) (domain.Context, error)
	Update(ctx context.Context, req contexts.UpdateRequest) (domain.Context, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Context, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]domain.Context, error)
	ListByDataset(ctx context.Context, datasetID uuid.UUID) ([]domain.Context, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Deprecate(ctx context.Context, id uuid.UUID) (domain.Context, error)
	Render(ctx context.Context, id uuid.UUID) (string, error)
}

// QueryHistory is the read side of the query record store.
type QueryHistory interface {
	ListByContext(ctx context.Context, contextID uuid.UUID, limit, offset int) ([]domain.QueryRecord, error)
}

// ContextHandler serves /api/contexts.
type ContextHandler struct {
	service ContextService
	history QueryHistory
}

func NewContextHandler(service ContextService, history QueryHistory) *ContextHandler {
	return &ContextHandler{service: service, history: history}
}

func (h *ContextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := pathTail(r.URL.Path, "/api/contexts")

	switch len(segments) {
	case 0:
		switch r.Method {
		case http.MethodPost:
			h.handleCreate(w, r)
		case http.MethodGet:
			h.handleList(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case 1:
		id, err := uuid.Parse(segments[0])
		if err != nil {
			badRequest(w, "invalid context id: %v", err)
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, id)
		case http.MethodPut:
			h.handleUpdate(w, r, id)
		case http.MethodDelete:
			h.handleDelete(w, r, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case 2:
		id, err := uuid.Parse(segments[0])
		if err != nil {
			badRequest(w, "invalid context id: %v", err)
			return
		}
		switch {
		case r.Method == http.MethodPost && segments[1] == "deprecate":
			h.handleDeprecate(w, r, id)
		case r.Method == http.MethodGet && segments[1] == "render":
			h.handleRender(w, r, id)
		case r.Method == http.MethodGet && segments[1] == "history":
			h.handleHistory(w, r, id)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

type contextPayload struct {
	Source    string `json:"source"`
	DatasetID string `json:"dataset_id,omitempty"`
	Activate  bool   `json:"activate,omitempty"`
}

func (p contextPayload) datasetUUID() (*uuid.UUID, error) {
	raw := strings.TrimSpace(p.DatasetID)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (h *ContextHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	var payload contextPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid request body: %v", err)
		return
	}
	datasetID, err := payload.datasetUUID()
	if err != nil {
		badRequest(w, "invalid dataset_id: %v", err)
		return
	}

	created, err := h.service.Create(r.Context(), contexts.CreateRequest{
		OwnerID:   ownerID,
		Source:    payload.Source,
		DatasetID: datasetID,
		Activate:  payload.Activate,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ContextHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if raw := strings.TrimSpace(r.URL.Query().Get("dataset_id")); raw != "" {
		datasetID, err := uuid.Parse(raw)
		if err != nil {
			badRequest(w, "invalid dataset_id: %v", err)
			return
		}
		list, err := h.service.ListByDataset(r.Context(), datasetID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
		return
	}

	ownerID, err := ownerFromRequest(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	list, err := h.service.List(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ContextHandler) handleGet(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ContextHandler) handleUpdate(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var payload contextPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid request body: %v", err)
		return
	}
	datasetID, err := payload.datasetUUID()
	if err != nil {
		badRequest(w, "invalid dataset_id: %v", err)
		return
	}

	updated, err := h.service.Update(r.Context(), contexts.UpdateRequest{
		ID:        id,
		Source:    payload.Source,
		DatasetID: datasetID,
		Activate:  payload.Activate,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ContextHandler) handleDelete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContextHandler) handleDeprecate(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	c, err := h.service.Deprecate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ContextHandler) handleRender(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	rendered, err := h.service.Render(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rendered))
}

func (h *ContextHandler) handleHistory(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	limit, offset := parsePage(r)
	records, err := h.history.ListByContext(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
