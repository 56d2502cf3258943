package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/pesio-ai/be-freight-documents/internal/client"
	"github.com/pesio-ai/be-freight-documents/internal/common/auth"
	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
	"github.com/pesio-ai/be-freight-documents/internal/common/logger"
	"github.com/pesio-ai/be-freight-documents/internal/common/middleware"
	"github.com/pesio-ai/be-freight-documents/internal/document"
	"github.com/pesio-ai/be-freight-documents/internal/service"
)

// HTTPHandler serves the document API for every registered document type
type HTTPHandler struct {
	controllers map[string]*service.SessionController
	catalogs    *service.SessionController
	log         *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler. Catalog requests are served
// through the first controller.
func NewHTTPHandler(controllers []*service.SessionController, log *logger.Logger) *HTTPHandler {
	h := &HTTPHandler{
		controllers: make(map[string]*service.SessionController, len(controllers)),
		log:         log,
	}
	for _, c := range controllers {
		h.controllers[c.Type().Code] = c
		if h.catalogs == nil {
			h.catalogs = c
		}
	}
	return h
}

// Register mounts the API routes under /api/v1
func (h *HTTPHandler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/catalogs/{catalog}", h.GetCatalog).Methods(http.MethodGet)

	docs := api.PathPrefix("/documents/{type}").Subrouter()
	docs.HandleFunc("", h.ListDocuments).Methods(http.MethodGet)
	docs.HandleFunc("", h.SubmitDocument).Methods(http.MethodPost)
	docs.HandleFunc("/new", h.NewDocument).Methods(http.MethodGet)
	docs.HandleFunc("/{id:[0-9]+}", h.GetDocument).Methods(http.MethodGet)
	docs.HandleFunc("/{id:[0-9]+}", h.SubmitDocument).Methods(http.MethodPut)
	docs.HandleFunc("/{id:[0-9]+}", h.DeleteDocument).Methods(http.MethodDelete)
	docs.HandleFunc("/{id:[0-9]+}/approve", h.Approve).Methods(http.MethodPost)
	docs.HandleFunc("/{id:[0-9]+}/disapprove", h.Disapprove).Methods(http.MethodPost)
	docs.HandleFunc("/{id:[0-9]+}/status", h.GetStatus).Methods(http.MethodGet)
	docs.HandleFunc("/{id:[0-9]+}/delete-request", h.RequestDelete).Methods(http.MethodPost)
	docs.HandleFunc("/{id:[0-9]+}/lines/{lineId:[0-9]+}/delete-request", h.RequestDelete).Methods(http.MethodPost)
	docs.HandleFunc("/{id:[0-9]+}/lines/{lineId:[0-9]+}", h.DeleteLine).Methods(http.MethodDelete)
	docs.HandleFunc("/{id:[0-9]+}/audit", h.GetAudit).Methods(http.MethodGet)
	docs.HandleFunc("/{id:[0-9]+}/export.xlsx", h.ExportLines).Methods(http.MethodGet)
}

// DocumentView is a loaded document as returned to the browser
type DocumentView struct {
	Type      string                   `json:"type"`
	Header    document.Header          `json:"header"`
	Lines     []document.LineItem      `json:"lines"`
	Approval  service.ApprovalView     `json:"approval"`
	Warnings  []string                 `json:"warnings,omitempty"`
	Reconcile *service.ReconcileResult `json:"reconcile,omitempty"`
}

// SubmitRequest is the body of a create or update. Omitted lines leave the
// persisted lines unchanged.
type SubmitRequest struct {
	Header document.Header     `json:"header"`
	Lines  []document.LineItem `json:"lines"`
}

// ListDocuments handles list HTTP requests
func (h *HTTPHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ctl, s, ok := h.prepare(w, r)
	if !ok {
		return
	}

	opts, err := listOptions(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	page, warnings, err := ctl.List(r.Context(), s, opts)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":        page.Items,
		"totalRecords": page.TotalRecords,
		"pageNumber":   opts.PageNumber,
		"pageSize":     opts.PageSize,
		"warnings":     warnings,
	})
}

// NewDocument returns a draft seeded with defaults
func (h *HTTPHandler) NewDocument(w http.ResponseWriter, r *http.Request) {
	h.openDocument(w, r, 0)
}

// GetDocument loads a document with enriched lines and the caller's status
func (h *HTTPHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.openDocument(w, r, id)
}

func (h *HTTPHandler) openDocument(w http.ResponseWriter, r *http.Request, id int64) {
	ctl, s, ok := h.prepare(w, r)
	if !ok {
		return
	}

	d, err := ctl.Start(r.Context(), s, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view(ctl, d, nil))
}

// SubmitDocument creates (POST) or updates (PUT) a document and reconciles
// its lines
func (h *HTTPHandler) SubmitDocument(w http.ResponseWriter, r *http.Request) {
	ctl, s, ok := h.prepare(w, r)
	if !ok {
		return
	}

	var id int64
	if _, has := mux.Vars(r)["id"]; has {
		var err error
		if id, err = pathID(r, "id"); err != nil {
			h.respondError(w, r, err)
			return
		}
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "Invalid request body: "+err.Error()))
		return
	}
	if id != 0 && req.Header.ID != 0 && req.Header.ID != id {
		h.respondError(w, r, errors.InvalidInput("header.id", "header id does not match the path"))
		return
	}

	d, err := ctl.Start(r.Context(), s, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	d.SetHeader(req.Header)

	result, err := d.Submit(r.Context(), req.Lines)
	if err != nil {
		var re *service.ReconcileError
		if errors.As(err, &re) {
			h.respondReconcileError(w, r, view(ctl, d, result.Reconcile), re)
			return
		}
		h.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	respondJSON(w, status, view(ctl, d, result.Reconcile))
}

// Approve records the caller's approval
func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, (*service.SessionController).Approve)
}

// Disapprove records the caller's disapproval
func (h *HTTPHandler) Disapprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, (*service.SessionController).Disapprove)
}

type decision func(*service.SessionController, context.Context, auth.Session, int64) (service.ApprovalView, error)

func (h *HTTPHandler) decide(w http.ResponseWriter, r *http.Request, fn decision) {
	ctl, s, ok := h.prepare(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	v, err := fn(ctl, r.Context(), s, id)
	if err != nil {
		// the decision was written; only the follow-up read failed
		if v.Status != "" && !v.Authoritative {
			respondJSON(w, http.StatusOK, map[string]interface{}{"approval": v, "warnings": []string{err.Error()}})
			return
		}
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"approval": v})
}

// GetStatus re-reads the caller's approval status
func (h *HTTPHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctl, s, ok := h.prepare(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	v, err := ctl.Status(r.Context(), s, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"approval": v})
}

// RequestDelete issues the confirmation ticket for a document or line delete
func (h *HTTPHandler) RequestDelete(w http.ResponseWriter, r *http.Request) {
	ctl, s, ok := h.prepare(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var lineID int64
	if _, has := mux.Vars(r)["lineId"]; has {
		if lineID, err = pathID(r, "lineId"); err != nil {
			h.respondError(w, r, err)
			return
		}
	}

	ticket, err := ctl.RequestDelete(s, id, lineID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ticket)
}

// DeleteDocument deletes a document once the ticket in ?confirm= is redeemed
func (h *HTTPHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	ctl, s, ok := h.prepare(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := ctl.DeleteDocument(r.Context(), s, id, r.URL.Query().Get("confirm")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteLine deletes one persisted line once the ticket in ?confirm= is
// redeemed
func (h *HTTPHandler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	ctl, s, ok := h.prepare(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	lineID, err := pathID(r, "lineId")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := ctl.DeleteLine(r.Context(), s, id, lineID, r.URL.Query().Get("confirm")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAudit returns the audit trail of a document
func (h *HTTPHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	ctl, _, ok := h.prepare(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := ctl.Audit(r.Context(), id, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// ExportLines streams the document's enriched lines as an XLSX workbook
func (h *HTTPHandler) ExportLines(w http.ResponseWriter, r *http.Request) {
	ctl, s, ok := h.prepare(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	d, err := ctl.Start(r.Context(), s, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	header := d.Header()
	name := header.Series
	if name == "" {
		name = fmt.Sprintf("%s-%d", ctl.Type().Code, id)
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".xlsx"))
	if err := WriteLinesXLSX(w, ctl.Type(), header, d.Lines()); err != nil {
		h.log.Error().Err(err).Int64("document_id", id).Msg("XLSX export failed")
	}
}

// GetCatalog returns one reference catalog
func (h *HTTPHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	c, err := document.ParseCatalog(mux.Vars(r)["catalog"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if h.catalogs == nil {
		h.respondError(w, r, errors.New(errors.ErrCodeInternal, "no document types registered"))
		return
	}

	refs, err := h.catalogs.Catalog(r.Context(), s, c)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"catalog": c, "items": refs})
}

// prepare resolves the document type controller and the caller's session
func (h *HTTPHandler) prepare(w http.ResponseWriter, r *http.Request) (*service.SessionController, auth.Session, bool) {
	ctl, ok := h.controllers[mux.Vars(r)["type"]]
	if !ok {
		h.respondError(w, r, errors.NotFound("document type", mux.Vars(r)["type"]))
		return nil, auth.Session{}, false
	}
	s, ok := h.session(w, r)
	if !ok {
		return nil, auth.Session{}, false
	}
	return ctl, s, true
}

func (h *HTTPHandler) session(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	s, ok := auth.FromContext(r.Context())
	if !ok {
		h.respondError(w, r, errors.New(errors.ErrCodeUnauthorized, "missing bearer credential"))
		return auth.Session{}, false
	}
	return s, true
}

func view(ctl *service.SessionController, d *service.DocumentSession, rec *service.ReconcileResult) DocumentView {
	return DocumentView{
		Type:      ctl.Type().Code,
		Header:    d.Header(),
		Lines:     d.Lines(),
		Approval:  d.Status(),
		Warnings:  d.Warnings(),
		Reconcile: rec,
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.InvalidInput(name, "must be a positive integer")
	}
	return id, nil
}

func listOptions(r *http.Request) (client.ListOptions, error) {
	q := r.URL.Query()
	opts := client.ListOptions{PageNumber: 1, PageSize: 50}

	if v := q.Get("pageNumber"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, errors.InvalidInput("pageNumber", "must be a positive integer")
		}
		opts.PageNumber = n
	}
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			return opts, errors.InvalidInput("pageSize", "must be between 1 and 500")
		}
		opts.PageSize = n
	}

	for _, f := range []struct {
		name string
		dst  **time.Time
	}{{"fromDate", &opts.FromDate}, {"toDate", &opts.ToDate}} {
		v := q.Get(f.name)
		if v == "" {
			continue
		}
		t, err := parseDate(v)
		if err != nil {
			return opts, errors.InvalidInput(f.name, "must be a date (YYYY-MM-DD)")
		}
		*f.dst = &t
	}
	if opts.FromDate != nil && opts.ToDate != nil && opts.ToDate.Before(*opts.FromDate) {
		return opts, errors.InvalidInput("toDate", "must not be before fromDate")
	}
	return opts, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// errorBody is the error envelope shared by every endpoint
type errorBody struct {
	Code    errors.ErrorCode       `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Code: errors.CodeOf(err), Message: err.Error()}

	var ve *errors.ValidationError
	var coded *errors.Error
	switch {
	case errors.As(err, &ve):
		body.Message = "Validation failed"
		body.Details = make(map[string]interface{}, len(ve.Fields))
		for field, msg := range ve.Fields {
			body.Details[field] = msg
		}
	case errors.As(err, &coded):
		body.Field = coded.Field
		body.Details = coded.Details
	}

	status := errors.HTTPStatus(body.Code)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
		if body.Code == errors.ErrCodeInternal {
			body.Message = "internal error"
		}
	}
	respondJSON(w, status, map[string]interface{}{"error": body})
}

// operationView is one failed child call in a reconcile error response
type operationView struct {
	Phase       string           `json:"phase"`
	Resource    string           `json:"resource"`
	LocalID     string           `json:"localId,omitempty"`
	PersistedID int64            `json:"persistedId,omitempty"`
	Code        errors.ErrorCode `json:"code"`
	Message     string           `json:"message"`
}

func (h *HTTPHandler) respondReconcileError(w http.ResponseWriter, r *http.Request, partial DocumentView, re *service.ReconcileError) {
	ops := make([]operationView, 0, len(re.Errors))
	for _, op := range re.Errors {
		v := operationView{
			Phase:       op.Phase,
			Resource:    op.Resource,
			PersistedID: op.PersistedID,
			Code:        errors.CodeOf(op.Err),
			Message:     op.Err.Error(),
		}
		if op.PersistedID == 0 {
			v.LocalID = op.LocalID.String()
		}
		ops = append(ops, v)
	}

	h.log.Warn().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("phase", re.Phase).
		Int("failed", len(ops)).
		Msg("Submit partially applied")

	respondJSON(w, http.StatusBadGateway, map[string]interface{}{
		"error": errorBody{
			Code:    errors.ErrCodeUpstream,
			Message: re.Error(),
			Details: map[string]interface{}{
				"phase":      re.Phase,
				"operations": ops,
			},
		},
		"result": partial,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
