package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dataspect/dataspect/internal/datasets"
	"github.com/dataspect/dataspect/internal/domain"

	"github.com/google/uuid"
)

// DatasetService is the slice of the dataset service the handler needs.
type DatasetService interface {
	Register(ctx context.Context, req datasets.RegisterRequest) (domain.Dataset, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Dataset, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]domain.Dataset, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Profile(ctx context.Context, id uuid.UUID) (domain.FrameStats, error)
}

// DatasetHandler serves /api/datasets. Uploads land in uploadDir; callers
// can also register a path the server can already read.
type DatasetHandler struct {
	service   DatasetService
	uploadDir string
}

func NewDatasetHandler(service DatasetService, uploadDir string) *DatasetHandler {
	if uploadDir == "" {
		uploadDir = filepath.Join(os.TempDir(), "dataspect-uploads")
	}
	return &DatasetHandler{service: service, uploadDir: uploadDir}
}

func (h *DatasetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := pathTail(r.URL.Path, "/api/datasets")

	switch len(segments) {
	case 0:
		switch r.Method {
		case http.MethodPost:
			h.handleRegister(w, r)
		case http.MethodGet:
			h.handleList(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case 1:
		id, err := uuid.Parse(segments[0])
		if err != nil {
			badRequest(w, "invalid dataset id: %v", err)
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, id)
		case http.MethodDelete:
			h.handleDelete(w, r, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case 2:
		id, err := uuid.Parse(segments[0])
		if err != nil {
			badRequest(w, "invalid dataset id: %v", err)
			return
		}
		if r.Method == http.MethodGet && segments[1] == "profile" {
			h.handleProfile(w, r, id)
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

type registerPayload struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	FilePath    string `json:"file_path"`
	FileType    string `json:"file_type,omitempty"`
}

func (h *DatasetHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	var req datasets.RegisterRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = h.registerFromUpload(r, ownerID)
	} else {
		req, err = registerFromJSON(r, ownerID)
	}
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	d, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func registerFromJSON(r *http.Request, ownerID uuid.UUID) (datasets.RegisterRequest, error) {
	var payload registerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return datasets.RegisterRequest{}, fmt.Errorf("invalid request body: %w", err)
	}
	if strings.TrimSpace(payload.FilePath) == "" {
		return datasets.RegisterRequest{}, fmt.Errorf("file_path is required")
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(payload.FilePath), filepath.Ext(payload.FilePath))
	}
	return datasets.RegisterRequest{
		OwnerID:     ownerID,
		Name:        name,
		Description: payload.Description,
		FilePath:    payload.FilePath,
		FileType:    payload.FileType,
	}, nil
}

func (h *DatasetHandler) registerFromUpload(r *http.Request, ownerID uuid.UUID) (datasets.RegisterRequest, error) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		return datasets.RegisterRequest{}, fmt.Errorf("invalid form data: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return datasets.RegisterRequest{}, fmt.Errorf("file required: %w", err)
	}
	defer file.Close()

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return datasets.RegisterRequest{}, fmt.Errorf("create upload dir: %w", err)
	}
	target := filepath.Join(h.uploadDir, fmt.Sprintf("%s%s", uuid.New(), filepath.Ext(header.Filename)))
	out, err := os.Create(target)
	if err != nil {
		return datasets.RegisterRequest{}, fmt.Errorf("store upload: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		return datasets.RegisterRequest{}, fmt.Errorf("store upload: %w", err)
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	return datasets.RegisterRequest{
		OwnerID:     ownerID,
		Name:        name,
		Description: strings.TrimSpace(r.FormValue("description")),
		FilePath:    target,
		FileType:    strings.TrimPrefix(filepath.Ext(header.Filename), "."),
	}, nil
}

func (h *DatasetHandler) handleList(w http.ResponseWriter, r *http.Request) {
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

func (h *DatasetHandler) handleGet(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DatasetHandler) handleDelete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DatasetHandler) handleProfile(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	stats, err := h.service.Profile(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
