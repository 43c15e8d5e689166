package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/munkdata/dbadmin/internal/admin"
	"github.com/munkdata/dbadmin/internal/catalog"
)

// Engine is the administration surface the handlers depend on. Authorization
// is an external gate: by the time a request reaches these handlers the
// caller is assumed to hold an administrator-class role.
type Engine interface {
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, name string) (*catalog.Table, error)
	Overview(ctx context.Context) ([]catalog.TableOverview, error)
	Stats(ctx context.Context) (*admin.Stats, error)
	Relationships(ctx context.Context) ([]catalog.ForeignKey, error)
	BrowseTable(ctx context.Context, table string, opts admin.BrowseOptions) (*admin.BrowseResult, error)
	RunGuardedQuery(ctx context.Context, sql string) ([]map[string]any, error)
	PrimaryKeyColumns(ctx context.Context, table string) ([]string, error)
	CreateRecord(ctx context.Context, table string, data map[string]any) (any, error)
	UpdateRecord(ctx context.Context, table string, primaryKey, data map[string]any) error
	DeleteRecord(ctx context.Context, table string, primaryKey map[string]any) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine      Engine
	rateLimiter *RateLimiter
}

// NewHandler creates a new API handler.
func NewHandler(engine Engine) *Handler {
	return &Handler{
		engine:      engine,
		rateLimiter: NewRateLimiter(100, time.Minute), // 100 requests per minute
	}
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/tables", h.handleListTables)
	apiMux.HandleFunc("GET /api/tables/overview", h.handleOverview)
	apiMux.HandleFunc("GET /api/stats", h.handleStats)
	apiMux.HandleFunc("GET /api/relationships", h.handleRelationships)
	apiMux.HandleFunc("GET /api/tables/{name}", h.handleDescribeTable)
	apiMux.HandleFunc("GET /api/tables/{name}/data", h.handleBrowseTable)
	apiMux.HandleFunc("GET /api/tables/{name}/primary-keys", h.handlePrimaryKeys)
	apiMux.HandleFunc("POST /api/query", h.handleQuery)
	apiMux.HandleFunc("POST /api/tables/{name}/records", h.handleCreateRecord)
	apiMux.HandleFunc("PUT /api/tables/{name}/records", h.handleUpdateRecord)
	apiMux.HandleFunc("DELETE /api/tables/{name}/records", h.handleDeleteRecord)

	// Middleware chain: request id/log -> body limit -> rate limiting.
	// 1MB limit for API request bodies.
	protected := RequestLog(LimitBodySize(h.rateLimiter.Wrap(apiMux), 1<<20))
	mux.Handle("/api/", protected)
}

// Stop stops background goroutines. Should be called on graceful shutdown.
func (h *Handler) Stop() {
	h.rateLimiter.Stop()
}

// API Response types for consistent format
type apiResponse[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for API responses
const (
	ErrInvalidRequest     = "INVALID_REQUEST"
	ErrMissingField       = "MISSING_FIELD"
	ErrInvalidTableName   = "INVALID_TABLE_NAME"
	ErrTableNotFound      = "TABLE_NOT_FOUND"
	ErrNoPrimaryKey       = "NO_PRIMARY_KEY"
	ErrNoUpdatableColumns = "NO_UPDATABLE_COLUMNS"
	ErrQueryRejected      = "QUERY_REJECTED"
	ErrDatabaseError      = "DATABASE_ERROR"
)

// respondJSON sends a successful JSON response with type-safe data
func respondJSON[T any](w http.ResponseWriter, data T) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	resp := apiResponse[T]{Success: true, Data: data}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// errorResponse is the response type for errors (no data field)
type errorResponse struct {
	Success bool      `json:"success"`
	Error   *apiError `json:"error,omitempty"`
}

// respondError sends an error JSON response (logs details server-side, sends safe message to client)
func (h *Handler) respondError(w http.ResponseWriter, code string, clientMessage string, status int, internalErr error) {
	if internalErr != nil {
		log.Printf("[%s] %s: %v", code, clientMessage, internalErr)
	} else {
		log.Printf("[%s] %s", code, clientMessage)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	resp := errorResponse{
		Success: false,
		Error:   &apiError{Code: code, Message: clientMessage},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("failed to encode error response: %v", err)
	}
}

// respondEngineError maps engine sentinel errors to codes and statuses.
func (h *Handler) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, admin.ErrTableNotFound):
		h.respondError(w, ErrTableNotFound, "Table not found", http.StatusNotFound, err)
	case errors.Is(err, admin.ErrNoPrimaryKey):
		h.respondError(w, ErrNoPrimaryKey, "Table has no primary key", http.StatusBadRequest, err)
	case errors.Is(err, admin.ErrNoUpdatableColumns):
		h.respondError(w, ErrNoUpdatableColumns, "Payload contains no updatable columns", http.StatusBadRequest, err)
	case errors.Is(err, admin.ErrQueryRejected):
		h.respondError(w, ErrQueryRejected, "Only SELECT queries are allowed", http.StatusBadRequest, err)
	default:
		h.respondError(w, ErrDatabaseError, "Database operation failed", http.StatusInternalServerError, err)
	}
}

// decodeJSONBody decodes JSON request body into the provided value.
// Returns false if decoding fails (error response already sent).
func (h *Handler) decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respondError(w, ErrInvalidRequest, "Invalid request body", http.StatusBadRequest, err)
		return false
	}
	return true
}

// tableName extracts and validates the {name} path value. Validation here
// is shape-only; the engine still checks the name against the catalog.
func (h *Handler) tableName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.PathValue("name")
	if name == "" {
		h.respondError(w, ErrMissingField, "table name is required", http.StatusBadRequest, nil)
		return "", false
	}
	if !admin.ValidIdentifier(name) {
		h.respondError(w, ErrInvalidTableName, "Invalid table name format", http.StatusBadRequest, nil)
		return "", false
	}
	return name, true
}

func (h *Handler) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.engine.ListTables(r.Context())
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	respondJSON(w, tables)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.engine.Overview(r.Context())
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, overview)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, stats)
}

func (h *Handler) handleRelationships(w http.ResponseWriter, r *http.Request) {
	relationships, err := h.engine.Relationships(r.Context())
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	if relationships == nil {
		relationships = []catalog.ForeignKey{}
	}
	respondJSON(w, relationships)
}

func (h *Handler) handleDescribeTable(w http.ResponseWriter, r *http.Request) {
	name, ok := h.tableName(w, r)
	if !ok {
		return
	}
	table, err := h.engine.DescribeTable(r.Context(), name)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, table)
}

type browseMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

type browseResponse struct {
	Success bool             `json:"success"`
	Data    []map[string]any `json:"data"`
	Meta    browseMeta       `json:"meta"`
}

func (h *Handler) handleBrowseTable(w http.ResponseWriter, r *http.Request) {
	name, ok := h.tableName(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	opts := admin.BrowseOptions{
		Page:      intParam(q.Get("page"), 1),
		Limit:     intParam(q.Get("limit"), 50),
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	// limit is caller-controlled with no server-side ceiling; this surface
	// serves trusted operators only.

	result, err := h.engine.BrowseTable(r.Context(), name, opts)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}

	totalPages := 0
	if result.Limit > 0 {
		totalPages = int((result.Total + int64(result.Limit) - 1) / int64(result.Limit))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	resp := browseResponse{
		Success: true,
		Data:    result.Rows,
		Meta: browseMeta{
			Total:      result.Total,
			Page:       result.Page,
			Limit:      result.Limit,
			TotalPages: totalPages,
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func (h *Handler) handlePrimaryKeys(w http.ResponseWriter, r *http.Request) {
	name, ok := h.tableName(w, r)
	if !ok {
		return
	}
	columns, err := h.engine.PrimaryKeyColumns(r.Context(), name)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	if columns == nil {
		columns = []string{}
	}
	respondJSON(w, columns)
}

type queryRequest struct {
	SQL string `json:"sql"`
}

type queryResponse struct {
	Success  bool             `json:"success"`
	Data     []map[string]any `json:"data"`
	RowCount int              `json:"rowCount"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}
	if req.SQL == "" {
		h.respondError(w, ErrMissingField, "sql is required", http.StatusBadRequest, nil)
		return
	}

	rows, err := h.engine.RunGuardedQuery(r.Context(), req.SQL)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	resp := queryResponse{Success: true, Data: rows, RowCount: len(rows)}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

type mutationResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	InsertedID any    `json:"insertedId,omitempty"`
}

type createRecordRequest struct {
	Data map[string]any `json:"data"`
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	name, ok := h.tableName(w, r)
	if !ok {
		return
	}
	var req createRecordRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		h.respondError(w, ErrMissingField, "data is required", http.StatusBadRequest, nil)
		return
	}

	id, err := h.engine.CreateRecord(r.Context(), name, req.Data)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	writeMutation(w, mutationResponse{Success: true, Message: "Record created", InsertedID: id})
}

type updateRecordRequest struct {
	PrimaryKey map[string]any `json:"primaryKey"`
	Data       map[string]any `json:"data"`
}

func (h *Handler) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	name, ok := h.tableName(w, r)
	if !ok {
		return
	}
	var req updateRecordRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.PrimaryKey) == 0 {
		h.respondError(w, ErrMissingField, "primaryKey is required", http.StatusBadRequest, nil)
		return
	}

	if err := h.engine.UpdateRecord(r.Context(), name, req.PrimaryKey, req.Data); err != nil {
		h.respondEngineError(w, err)
		return
	}
	writeMutation(w, mutationResponse{Success: true, Message: "Record updated"})
}

type deleteRecordRequest struct {
	PrimaryKey map[string]any `json:"primaryKey"`
}

func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	name, ok := h.tableName(w, r)
	if !ok {
		return
	}
	var req deleteRecordRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.PrimaryKey) == 0 {
		h.respondError(w, ErrMissingField, "primaryKey is required", http.StatusBadRequest, nil)
		return
	}

	if err := h.engine.DeleteRecord(r.Context(), name, req.PrimaryKey); err != nil {
		h.respondEngineError(w, err)
		return
	}
	writeMutation(w, mutationResponse{Success: true, Message: "Record deleted"})
}

func writeMutation(w http.ResponseWriter, resp mutationResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
