package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database"
	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/metrics"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon"
	"github.com/Rasmus-Riis/OfficeRecon/pkg/auth"
)

const maxPerPage = 500

// BatchScanner runs scans requested through the API.
type BatchScanner interface {
	Scan(ctx context.Context, roots []string) (*recon.Batch, error)
	CompleteDeepScans(ctx context.Context, records []*models.FileRecord) int
}

// WebServer holds the data needed for handling HTTP requests.
type WebServer struct {
	Scanner     BatchScanner
	Database    database.Database
	config      *WebserverConfig
	authConfig  *auth.Config
	authHandler *auth.Handler
	Logger      *logrus.Logger

	jobs    *jobStore
	baseCtx context.Context
	wg      sync.WaitGroup
}

// StartWebServer starts the HTTP server. Scan jobs run under ctx.
func StartWebServer(ctx context.Context, ws *WebServer) (*http.Server, error) {
	ws.baseCtx = ctx
	router := ws.InitRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   ws.config.CorsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		Debug:            false,
	}
	handler := cors.New(corsOptions).Handler(router)

	server := &http.Server{
		Addr:    ws.config.ListenTo,
		Handler: handler,
	}

	go func() {
		ws.Logger.Infof("Server starting on %s", ws.config.ListenTo)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.Logger.Errorf("ListenAndServe(): %v", err)
		}
	}()

	return server, nil
}

// NewWebServer initializes a new WebServer. db may be nil when persistence
// is disabled.
func NewWebServer(scanner BatchScanner, db database.Database, config *WebserverConfig, authConfig *auth.Config, authHandler *auth.Handler, logger *logrus.Logger) *WebServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WebServer{
		Scanner:     scanner,
		Database:    db,
		config:      config,
		authConfig:  authConfig,
		authHandler: authHandler,
		Logger:      logger,
		jobs:        newJobStore(),
		baseCtx:     context.Background(),
	}
}

// Wait blocks until every scan job started by the server has finished.
func (ws *WebServer) Wait() {
	ws.wg.Wait()
}

// InitRouter initializes the HTTP routes.
func (ws *WebServer) InitRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(ws.instrument)

	api := r.PathPrefix("/api").Subrouter()
	authRouter := r.PathPrefix("/auth").Subrouter()

	authRouter.Handle("/status", ws.authHandler.AuthMiddleware(http.HandlerFunc(ws.authHandler.HandleStatus))).Methods(http.MethodGet)
	authRouter.Handle("/logout", ws.authHandler.AuthMiddleware(http.HandlerFunc(ws.authHandler.HandleLogout))).Methods(http.MethodPost)

	api.Use(ws.authHandler.AuthMiddleware)

	api.HandleFunc("/stats", ws.handleGetStats).Methods(http.MethodGet)
	api.HandleFunc("/records", ws.handleGetRecords).Methods(http.MethodGet)
	api.HandleFunc("/records/{id}", ws.handleGetRecord).Methods(http.MethodGet)
	api.HandleFunc("/records/{id}", ws.handleDeleteRecord).Methods(http.MethodDelete)
	api.HandleFunc("/hashes/{sha256}", ws.handleGetHash).Methods(http.MethodGet)
	api.HandleFunc("/scans", ws.handleStartScan).Methods(http.MethodPost)
	api.HandleFunc("/scans/{id}", ws.handleGetScan).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if ws.config.StaticDir != "" {
		r.PathPrefix("/").Handler(
			http.StripPrefix("/", http.FileServer(http.Dir(ws.config.StaticDir))))
	}
	return r
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// instrument counts requests by route template and status.
func (ws *WebServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// requireDatabase writes 503 and returns false when persistence is disabled.
func (ws *WebServer) requireDatabase(w http.ResponseWriter) bool {
	if ws.Database == nil {
		auth.WriteErrorResponse(w, "Record storage is disabled", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// handleGetStats handles the GET /api/stats endpoint.
func (ws *WebServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if !ws.requireDatabase(w) {
		return
	}
	stats, err := ws.Database.GetStats(r.Context())
	if err != nil {
		ws.Logger.WithError(err).Error("Failed to retrieve stats")
		auth.WriteErrorResponse(w, "Failed to retrieve statistics", http.StatusInternalServerError)
		return
	}
	auth.WriteSuccessResponse(w, "Statistics retrieved successfully", stats)
}

// parseRecordFilter reads pagination and filter query parameters.
func parseRecordFilter(r *http.Request) (models.RecordFilter, error) {
	query := r.URL.Query()
	filter := models.RecordFilter{
		Verdict: strings.ToUpper(strings.TrimSpace(query.Get("verdict"))),
		Threat:  strings.TrimSpace(query.Get("threat")),
	}

	page, err := strconv.Atoi(query.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(query.Get("per_page"))
	if err != nil || perPage < 1 {
		perPage = 50
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	filter.Page, filter.PerPage = page, perPage

	switch strings.ToLower(query.Get("duplicate")) {
	case "":
	case "true":
		v := true
		filter.Duplicate = &v
	case "false":
		v := false
		filter.Duplicate = &v
	default:
		return filter, errors.New("duplicate must be true or false")
	}

	switch models.Verdict(filter.Verdict) {
	case "", models.VerdictOrganic, models.VerdictSynthetic, models.VerdictMixed, models.VerdictLocked, models.VerdictUnknown:
	default:
		return filter, errors.New("unknown verdict")
	}
	return filter, nil
}

// handleGetRecords handles the GET /api/records endpoint.
func (ws *WebServer) handleGetRecords(w http.ResponseWriter, r *http.Request) {
	if !ws.requireDatabase(w) {
		return
	}
	filter, err := parseRecordFilter(r)
	if err != nil {
		auth.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, total, err := ws.Database.LoadRecordsPaginated(r.Context(), filter)
	if err != nil {
		ws.Logger.WithError(err).Error("Failed to load paginated records")
		auth.WriteErrorResponse(w, "Failed to retrieve records", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.FileRecord{}
	}

	response := models.RecordsResponse{
		Records:    records,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		Total:      total,
		TotalPages: (total + filter.PerPage - 1) / filter.PerPage,
	}
	auth.WriteSuccessResponse(w, "Records retrieved successfully", response)
}

// handleGetRecord handles the GET /api/records/{id} endpoint.
func (ws *WebServer) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	if !ws.requireDatabase(w) {
		return
	}
	id := mux.Vars(r)["id"]
	record, err := ws.Database.GetRecord(r.Context(), id)
	if errors.Is(err, database.ErrRecordNotFound) {
		auth.WriteErrorResponse(w, "Record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		ws.Logger.WithError(err).WithField("id", id).Error("Failed to get record")
		auth.WriteErrorResponse(w, "Failed to retrieve record", http.StatusInternalServerError)
		return
	}
	auth.WriteSuccessResponse(w, "Record retrieved successfully", models.RecordDetailResponse{Record: record})
}

// handleDeleteRecord handles the DELETE /api/records/{id} endpoint.
func (ws *WebServer) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if !ws.requireDatabase(w) {
		return
	}
	id := mux.Vars(r)["id"]
	err := ws.Database.DeleteRecord(r.Context(), id)
	if errors.Is(err, database.ErrRecordNotFound) {
		auth.WriteErrorResponse(w, "Record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		ws.Logger.WithError(err).WithField("id", id).Error("Failed to delete record")
		auth.WriteErrorResponse(w, "Failed to delete record", http.StatusInternalServerError)
		return
	}
	ws.Logger.WithField("id", id).Info("Record deleted")
	auth.WriteSuccessResponse(w, "Record deleted successfully", nil)
}

// handleGetHash handles the GET /api/hashes/{sha256} endpoint.
func (ws *WebServer) handleGetHash(w http.ResponseWriter, r *http.Request) {
	if !ws.requireDatabase(w) {
		return
	}
	hash := mux.Vars(r)["sha256"]
	if err := models.ValidateSHA256(hash); err != nil {
		auth.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := ws.Database.FindByHash(r.Context(), hash)
	if err != nil {
		ws.Logger.WithError(err).WithField("sha256", hash).Error("Failed to look up hash")
		auth.WriteErrorResponse(w, "Failed to retrieve records", http.StatusInternalServerError)
		return
	}
	if len(records) == 0 {
		auth.WriteErrorResponse(w, "Hash not found", http.StatusNotFound)
		return
	}
	auth.WriteSuccessResponse(w, "Records retrieved successfully", records)
}

// ScanRequest is the body of POST /api/scans.
type ScanRequest struct {
	Paths    []string `json:"paths"`
	DeepScan bool     `json:"deep_scan"`
}

// handleStartScan handles the POST /api/scans endpoint. The batch runs in
// the background; progress is read from GET /api/scans/{id}.
func (ws *WebServer) handleStartScan(w http.ResponseWriter, r *http.Request) {
	if ws.Scanner == nil || len(ws.config.ScanAllowedRoots) == 0 {
		auth.WriteErrorResponse(w, "Remote scans are disabled", http.StatusForbidden)
		return
	}

	var req ScanRequest
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.Logger.WithError(err).Warn("Invalid scan request payload")
		auth.WriteErrorResponse(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if len(req.Paths) == 0 {
		auth.WriteErrorResponse(w, "At least one path is required", http.StatusBadRequest)
		return
	}
	for _, p := range req.Paths {
		if !allowedPath(p, ws.config.ScanAllowedRoots) {
			ws.Logger.WithField("path", p).Warn("Scan request outside allowed roots")
			auth.WriteErrorResponse(w, "Path is outside the allowed scan roots: "+p, http.StatusForbidden)
			return
		}
	}

	job := ws.jobs.start(req.Paths, req.DeepScan)
	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		ws.runJob(job.ID, req)
	}()

	ws.Logger.WithFields(logrus.Fields{"job_id": job.ID, "paths": req.Paths}).Info("Scan job accepted")
	auth.WriteAcceptedResponse(w, "Scan started", job)
}

func (ws *WebServer) runJob(id string, req ScanRequest) {
	logger := ws.Logger.WithField("job_id", id)
	batch, err := ws.Scanner.Scan(ws.baseCtx, req.Paths)
	if err != nil {
		logger.WithError(err).Error("Scan job failed")
		ws.jobs.finish(id, nil, nil, err)
		return
	}
	if req.DeepScan {
		n := ws.Scanner.CompleteDeepScans(ws.baseCtx, batch.Records)
		logger.WithField("completed", n).Info("Deep scans completed")
	}
	ws.jobs.finish(id, &batch.Summary, batch.Relations, nil)
	logger.WithField("processed", batch.Summary.Processed).Info("Scan job finished")
}

// handleGetScan handles the GET /api/scans/{id} endpoint.
func (ws *WebServer) handleGetScan(w http.ResponseWriter, r *http.Request) {
	job, ok := ws.jobs.get(mux.Vars(r)["id"])
	if !ok {
		auth.WriteErrorResponse(w, "Scan job not found", http.StatusNotFound)
		return
	}
	auth.WriteSuccessResponse(w, "Scan job retrieved successfully", job)
}
