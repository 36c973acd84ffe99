package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dataspect/dataspect/internal/auth"
	"github.com/dataspect/dataspect/internal/contexts"
	"github.com/dataspect/dataspect/internal/datasets"
	"github.com/dataspect/dataspect/internal/domain"
	"github.com/dataspect/dataspect/internal/engine"
	"github.com/dataspect/dataspect/internal/frame"

	"github.com/google/uuid"
)

type fakeContextService struct {
	created  []contexts.CreateRequest
	stored   map[uuid.UUID]domain.Context
	rendered string
}

func newFakeContextService() *fakeContextService {
	return &fakeContextService{stored: make(map[uuid.UUID]domain.Context)}
}

func (f *fakeContextService) Create(_ context.Context, req contexts.CreateRequest) (domain.Context, error) {
	f.created = append(f.created, req)
	c := domain.NewContext(req.OwnerID, req.Source)
	c.Name = "fixture"
	f.stored[c.ID] = c
	return c, nil
}

func (f *fakeContextService) Update(_ context.Context, req contexts.UpdateRequest) (domain.Context, error) {
	c, ok := f.stored[req.ID]
	if !ok {
		return domain.Context{}, contexts.ErrNotFound
	}
	c.Source = req.Source
	f.stored[req.ID] = c
	return c, nil
}

func (f *fakeContextService) Get(_ context.Context, id uuid.UUID) (domain.Context, error) {
	c, ok := f.stored[id]
	if !ok {
		return domain.Context{}, contexts.ErrNotFound
	}
	return c, nil
}

func (f *fakeContextService) List(_ context.Context, ownerID uuid.UUID) ([]domain.Context, error) {
	var out []domain.Context
	for _, c := range f.stored {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContextService) ListByDataset(context.Context, uuid.UUID) ([]domain.Context, error) {
	return nil, nil
}

func (f *fakeContextService) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.stored[id]; !ok {
		return contexts.ErrNotFound
	}
	delete(f.stored, id)
	return nil
}

func (f *fakeContextService) Deprecate(_ context.Context, id uuid.UUID) (domain.Context, error) {
	c, ok := f.stored[id]
	if !ok {
		return domain.Context{}, contexts.ErrNotFound
	}
	c.Status = domain.ContextStatusDeprecated
	f.stored[id] = c
	return c, nil
}

func (f *fakeContextService) Render(_ context.Context, id uuid.UUID) (string, error) {
	if _, ok := f.stored[id]; !ok {
		return "", contexts.ErrNotFound
	}
	return f.rendered, nil
}

type fakeEngine struct {
	lastQuery engine.QueryRequest
	lastAsk   engine.AskRequest
	result    engine.QueryResult
	err       error
}

func (f *fakeEngine) Query(_ context.Context, req engine.QueryRequest) (engine.QueryResult, error) {
	f.lastQuery = req
	return f.result, f.err
}

func (f *fakeEngine) Ask(_ context.Context, req engine.AskRequest) (engine.QueryResult, error) {
	f.lastAsk = req
	return f.result, f.err
}

type fakeHistory struct {
	records []domain.QueryRecord
}

func (f *fakeHistory) GetByID(_ context.Context, id uuid.UUID) (domain.QueryRecord, error) {
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return domain.QueryRecord{}, fmt.Errorf("record not found")
}

func (f *fakeHistory) List(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.QueryRecord, error) {
	var out []domain.QueryRecord
	for _, rec := range f.records {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeHistory) ListByContext(_ context.Context, contextID uuid.UUID, limit, offset int) ([]domain.QueryRecord, error) {
	var out []domain.QueryRecord
	for _, rec := range f.records {
		if rec.ContextID != nil && *rec.ContextID == contextID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeDatasetService struct {
	registered []datasets.RegisterRequest
}

func (f *fakeDatasetService) Register(_ context.Context, req datasets.RegisterRequest) (domain.Dataset, error) {
	f.registered = append(f.registered, req)
	return domain.Dataset{ID: uuid.New(), OwnerID: req.OwnerID, Name: req.Name, FilePath: req.FilePath}, nil
}

func (f *fakeDatasetService) Get(_ context.Context, id uuid.UUID) (domain.Dataset, error) {
	return domain.Dataset{}, &domain.DatasetNotFoundError{DatasetID: id}
}

func (f *fakeDatasetService) List(context.Context, uuid.UUID) ([]domain.Dataset, error) {
	return []domain.Dataset{}, nil
}

func (f *fakeDatasetService) Delete(context.Context, uuid.UUID) error { return nil }

func (f *fakeDatasetService) Profile(context.Context, uuid.UUID) (domain.FrameStats, error) {
	return domain.FrameStats{}, nil
}

func testRouter(t *testing.T, ctxService ContextService, dsService DatasetService, eng QueryEngine, history HistoryStore) http.Handler {
	t.Helper()
	if ctxService == nil {
		ctxService = newFakeContextService()
	}
	if dsService == nil {
		dsService = &fakeDatasetService{}
	}
	if eng == nil {
		eng = &fakeEngine{}
	}
	if history == nil {
		history = &fakeHistory{}
	}
	return NewRouter(RouterConfig{
		Contexts:       ctxService,
		Datasets:       dsService,
		Engine:         eng,
		History:        history,
		UploadDir:      t.TempDir(),
		AllowedOrigins: []string{"*"},
	})
}

func ownedRequest(method, target string, body any) *http.Request {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(auth.OwnerHeader, "c3a4e9ab-2b4b-4f58-8d7e-111111111111")
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateContext_ReturnsCreated(t *testing.T) {
	svc := newFakeContextService()
	router := testRouter(t, svc, nil, nil, nil)

	req := ownedRequest(http.MethodPost, "/api/contexts", map[string]any{
		"source":   "# Orders\n\nOrder analytics.",
		"activate": true,
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(svc.created) != 1 {
		t.Fatalf("expected one create call, got %d", len(svc.created))
	}
	if !svc.created[0].Activate {
		t.Errorf("expected activate flag to pass through")
	}
	if svc.created[0].OwnerID == uuid.Nil {
		t.Errorf("expected owner scope from header")
	}
}

func TestCreateContext_RequiresOwner(t *testing.T) {
	router := testRouter(t, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/contexts", strings.NewReader(`{"source":"x"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without owner scope, got %d", rr.Code)
	}
}

func TestGetContext_NotFoundMapsTo404(t *testing.T) {
	router := testRouter(t, nil, nil, nil, nil)

	req := ownedRequest(http.MethodGet, "/api/contexts/"+uuid.NewString(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestQuery_ReturnsFrameJSON(t *testing.T) {
	f := frame.New([]string{"customers.name", "revenue"})
	f.AppendRow([]any{"Alice", float64(150)})
	eng := &fakeEngine{result: engine.QueryResult{
		Frame:  f,
		Record: domain.NewQueryRecord(uuid.New(), nil, domain.QueryTypeDirect, "SELECT 1"),
	}}
	router := testRouter(t, nil, nil, eng, nil)

	req := ownedRequest(http.MethodPost, "/api/query", map[string]any{
		"context_id":    uuid.NewString(),
		"query":         "SELECT customers.name, revenue",
		"apply_filters": []string{"active_only"},
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp queryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Rows) != 1 || resp.Columns[1] != "revenue" {
		t.Errorf("unexpected frame payload: %+v", resp)
	}
	if len(eng.lastQuery.ApplyFilters) != 1 || eng.lastQuery.ApplyFilters[0] != "active_only" {
		t.Errorf("expected apply_filters to pass through, got %v", eng.lastQuery.ApplyFilters)
	}
}

func TestQuery_CSVDownload(t *testing.T) {
	f := frame.New([]string{"name"})
	f.AppendRow([]any{"Alice"})
	eng := &fakeEngine{result: engine.QueryResult{
		Frame:  f,
		Record: domain.NewQueryRecord(uuid.New(), nil, domain.QueryTypeDirect, "q"),
	}}
	router := testRouter(t, nil, nil, eng, nil)

	req := ownedRequest(http.MethodPost, "/api/query?format=csv", map[string]any{
		"context_id": uuid.NewString(),
		"query":      "SELECT name",
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected text/csv, got %q", ct)
	}
	if !strings.HasPrefix(rr.Body.String(), "name\nAlice") {
		t.Errorf("unexpected csv body: %q", rr.Body.String())
	}
}

func TestQuery_UnsupportedOperationMapsTo400(t *testing.T) {
	eng := &fakeEngine{err: &domain.UnsupportedOperationError{Operation: "DELETE"}}
	router := testRouter(t, nil, nil, eng, nil)

	req := ownedRequest(http.MethodPost, "/api/query", map[string]any{
		"context_id": uuid.NewString(),
		"query":      "DELETE FROM orders",
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if resp.Code != "unsupported_operation" {
		t.Errorf("expected unsupported_operation code, got %q", resp.Code)
	}
}

func TestAsk_PassesQuestionThrough(t *testing.T) {
	eng := &fakeEngine{result: engine.QueryResult{
		Frame:  frame.New([]string{"n"}),
		Record: domain.NewQueryRecord(uuid.New(), nil, domain.QueryTypeNaturalLanguage, "q"),
	}}
	router := testRouter(t, nil, nil, eng, nil)

	req := ownedRequest(http.MethodPost, "/api/ask", map[string]any{
		"context_id": uuid.NewString(),
		"question":   "total revenue per customer?",
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if eng.lastAsk.Question != "total revenue per customer?" {
		t.Errorf("question did not pass through: %q", eng.lastAsk.Question)
	}
}

func TestHistory_ScopedToOwner(t *testing.T) {
	owner := uuid.MustParse("c3a4e9ab-2b4b-4f58-8d7e-111111111111")
	other := uuid.New()
	history := &fakeHistory{records: []domain.QueryRecord{
		domain.NewQueryRecord(owner, nil, domain.QueryTypeDirect, "mine"),
		domain.NewQueryRecord(other, nil, domain.QueryTypeDirect, "theirs"),
	}}
	router := testRouter(t, nil, nil, nil, history)

	req := ownedRequest(http.MethodGet, "/api/history", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var records []domain.QueryRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("failed to decode records: %v", err)
	}
	if len(records) != 1 || records[0].OriginalInput != "mine" {
		t.Errorf("expected only owner records, got %+v", records)
	}
}

func TestRegisterDataset_FromJSONPath(t *testing.T) {
	svc := &fakeDatasetService{}
	router := testRouter(t, nil, svc, nil, nil)

	req := ownedRequest(http.MethodPost, "/api/datasets", map[string]any{
		"file_path": "/data/orders.csv",
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(svc.registered) != 1 {
		t.Fatalf("expected one register call, got %d", len(svc.registered))
	}
	if svc.registered[0].Name != "orders" {
		t.Errorf("expected name derived from file, got %q", svc.registered[0].Name)
	}
}

func TestDeprecateContext(t *testing.T) {
	svc := newFakeContextService()
	c := domain.NewContext(uuid.New(), "src")
	svc.stored[c.ID] = c
	router := testRouter(t, svc, nil, nil, nil)

	req := ownedRequest(http.MethodPost, "/api/contexts/"+c.ID.String()+"/deprecate", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got domain.Context
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode context: %v", err)
	}
	if got.Status != domain.ContextStatusDeprecated {
		t.Errorf("expected deprecated status, got %q", got.Status)
	}
}

func TestQuery_DatasetOnlyRequest(t *testing.T) {
	f := frame.New([]string{"order_id"})
	f.AppendRow([]any{int64(10)})
	eng := &fakeEngine{result: engine.QueryResult{
		Frame:  f,
		Record: domain.NewQueryRecord(uuid.New(), nil, domain.QueryTypeDirect, "SELECT order_id"),
	}}
	router := testRouter(t, nil, nil, eng, nil)

	datasetID := uuid.New()
	req := ownedRequest(http.MethodPost, "/api/query", map[string]any{
		"dataset_id": datasetID.String(),
		"query":      "SELECT order_id",
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if eng.lastQuery.DatasetID != datasetID {
		t.Errorf("expected dataset id to pass through, got %v", eng.lastQuery.DatasetID)
	}
	if eng.lastQuery.ContextID != uuid.Nil {
		t.Errorf("dataset-only request must carry no context id, got %v", eng.lastQuery.ContextID)
	}
}

func TestQuery_RequiresContextOrDataset(t *testing.T) {
	router := testRouter(t, nil, nil, &fakeEngine{}, nil)

	req := ownedRequest(http.MethodPost, "/api/query", map[string]any{
		"query": "SELECT order_id",
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without context_id or dataset_id, got %d", rr.Code)
	}
}
