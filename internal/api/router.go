package api

import (
	"net/http"

	"github.com/dataspect/dataspect/internal/auth"
	"github.com/dataspect/dataspect/internal/middleware"

	"github.com/rs/cors"
)

// HistoryStore is the full read side of the query history.
type HistoryStore interface {
	QueryRecordReader
	QueryHistory
}

// RouterConfig wires the REST surface together.
type RouterConfig struct {
	Contexts       ContextService
	Datasets       DatasetService
	Engine         QueryEngine
	History        HistoryStore
	UploadDir      string
	AllowedOrigins []string
}

// NewRouter builds the full HTTP handler stack: CORS, request logging,
// owner scoping and the resource handlers.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	contextHandler := NewContextHandler(cfg.Contexts, cfg.History)
	datasetHandler := NewDatasetHandler(cfg.Datasets, cfg.UploadDir)
	queryHandler := NewQueryHandler(cfg.Engine, cfg.History)

	mux.Handle("/api/contexts", contextHandler)
	mux.Handle("/api/contexts/", contextHandler)
	mux.Handle("/api/datasets", datasetHandler)
	mux.Handle("/api/datasets/", datasetHandler)
	mux.HandleFunc("/api/query", queryHandler.HandleQuery)
	mux.HandleFunc("/api/ask", queryHandler.HandleAsk)
	mux.HandleFunc("/api/history", queryHandler.HandleHistory)
	mux.HandleFunc("/api/history/", queryHandler.HandleHistory)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	return corsHandler.Handler(middleware.LoggingMiddleware(auth.Middleware(mux)))
}
