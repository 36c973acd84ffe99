// Package api exposes the REST surface: context management, the dataset
// registry, query execution and history.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dataspect/dataspect/internal/auth"
	"github.com/dataspect/dataspect/internal/contexts"
	"github.com/dataspect/dataspect/internal/domain"

	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognized
// is a 500.
func writeError(w http.ResponseWriter, err error) {
	var (
		parseErr       *domain.ParseError
		unsupportedErr *domain.UnsupportedOperationError
		unreachableErr *domain.UnreachableDatasetError
		joinKeyErr     *domain.JoinKeyError
		genErr         *domain.GenerationError
		genTimeoutErr  *domain.GenerationTimeoutError
		notFoundErr    *domain.DatasetNotFoundError
		loadErr        *domain.DatasetLoadError
		loadTimeoutErr *domain.DatasetLoadTimeoutError
		ruleErr        *domain.BusinessRuleViolation
	)

	switch {
	case errors.As(err, &parseErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "parse_error"})
	case errors.As(err, &unsupportedErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "unsupported_operation"})
	case errors.As(err, &unreachableErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "unreachable_dataset"})
	case errors.As(err, &joinKeyErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "join_key_error"})
	case errors.As(err, &genErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Code: "generation_failed"})
	case errors.As(err, &genTimeoutErr):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: err.Error(), Code: "generation_timeout"})
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "dataset_not_found"})
	case errors.As(err, &loadTimeoutErr):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: err.Error(), Code: "dataset_load_timeout"})
	case errors.As(err, &loadErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "dataset_load_error"})
	case errors.As(err, &ruleErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "business_rule_violation"})
	case errors.Is(err, contexts.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "context_not_found"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// ownerFromRequest resolves the caller scope: the authenticated context
// first, then an explicit owner_id parameter.
func ownerFromRequest(r *http.Request) (uuid.UUID, error) {
	if id, ok := auth.OwnerIDFromContext(r.Context()); ok {
		return id, nil
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("owner_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid owner_id: %w", err)
		}
		return id, nil
	}
	return uuid.Nil, fmt.Errorf("owner scope required: set %s header or owner_id parameter", auth.OwnerHeader)
}

// pathTail splits the path remainder after a prefix into non-empty segments.
func pathTail(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func parsePage(r *http.Request) (limit, offset int) {
	limit = 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
