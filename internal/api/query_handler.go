package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dataspect/dataspect/internal/domain"
	"github.com/dataspect/dataspect/internal/engine"
	"github.com/dataspect/dataspect/internal/export"
	"github.com/dataspect/dataspect/internal/frame"

	"github.com/google/uuid"
)

// QueryEngine runs direct and natural language queries.
type QueryEngine interface {
	Query(ctx context.Context, req engine.QueryRequest) (engine.QueryResult, error)
	Ask(ctx context.Context, req engine.AskRequest) (engine.QueryResult, error)
}

// QueryRecordReader is the read side of the owner-scoped query history.
type QueryRecordReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.QueryRecord, error)
	List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.QueryRecord, error)
}

// QueryHandler serves /api/query, /api/ask and /api/history.
type QueryHandler struct {
	engine  QueryEngine
	history QueryRecordReader
}

func NewQueryHandler(eng QueryEngine, history QueryRecordReader) *QueryHandler {
	return &QueryHandler{engine: eng, history: history}
}

type queryPayload struct {
	// ContextID and DatasetID are alternatives: direct queries take either a
	// context or a single bare dataset.
	ContextID    string   `json:"context_id,omitempty"`
	DatasetID    string   `json:"dataset_id,omitempty"`
	Query        string   `json:"query,omitempty"`
	Question     string   `json:"question,omitempty"`
	ApplyFilters []string `json:"apply_filters,omitempty"`
}

// queryResponse is the JSON shape of an executed query.
type queryResponse struct {
	Columns []string           `json:"columns"`
	Rows    [][]any            `json:"rows"`
	Record  domain.QueryRecord `json:"record"`
}

func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ownerID, payload, err := decodeQueryPayload(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	var contextID, datasetID uuid.UUID
	switch {
	case payload.ContextID != "":
		contextID, err = uuid.Parse(payload.ContextID)
		if err != nil {
			badRequest(w, "invalid context_id: %v", err)
			return
		}
	case payload.DatasetID != "":
		datasetID, err = uuid.Parse(payload.DatasetID)
		if err != nil {
			badRequest(w, "invalid dataset_id: %v", err)
			return
		}
	default:
		badRequest(w, "context_id or dataset_id is required")
		return
	}
	if payload.Query == "" {
		badRequest(w, "query is required")
		return
	}

	result, err := h.engine.Query(r.Context(), engine.QueryRequest{
		OwnerID:      ownerID,
		ContextID:    contextID,
		DatasetID:    datasetID,
		Query:        payload.Query,
		ApplyFilters: payload.ApplyFilters,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeResult(w, r, result)
}

func (h *QueryHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ownerID, payload, err := decodeQueryPayload(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	if payload.ContextID == "" {
		badRequest(w, "context_id is required: questions are answered with a context's vocabulary")
		return
	}
	contextID, err := uuid.Parse(payload.ContextID)
	if err != nil {
		badRequest(w, "invalid context_id: %v", err)
		return
	}
	if payload.Question == "" {
		badRequest(w, "question is required")
		return
	}

	result, err := h.engine.Ask(r.Context(), engine.AskRequest{
		OwnerID:      ownerID,
		ContextID:    contextID,
		Question:     payload.Question,
		ApplyFilters: payload.ApplyFilters,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeResult(w, r, result)
}

func (h *QueryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	segments := pathTail(r.URL.Path, "/api/history")
	switch len(segments) {
	case 0:
		ownerID, err := ownerFromRequest(r)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		limit, offset := parsePage(r)
		records, err := h.history.List(r.Context(), ownerID, limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	case 1:
		id, err := uuid.Parse(segments[0])
		if err != nil {
			badRequest(w, "invalid record id: %v", err)
			return
		}
		rec, err := h.history.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func decodeQueryPayload(r *http.Request) (uuid.UUID, queryPayload, error) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		return uuid.Nil, queryPayload{}, err
	}
	var payload queryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return uuid.Nil, queryPayload{}, fmt.Errorf("invalid request body: %w", err)
	}
	return ownerID, payload, nil
}

// writeResult renders the frame as JSON, or as a file download when a
// format parameter asks for one.
func (h *QueryHandler) writeResult(w http.ResponseWriter, r *http.Request, result engine.QueryResult) {
	if raw := r.URL.Query().Get("format"); raw != "" && raw != "json" {
		format, err := export.ParseFormat(raw)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", format.Filename(result.Record.ID.String())))
		if err := export.Write(w, result.Frame, format); err != nil {
			writeError(w, err)
		}
		return
	}

	f := result.Frame
	if f == nil {
		f = frame.New(nil)
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Columns: f.Columns,
		Rows:    f.Rows,
		Record:  result.Record,
	})
}
