// Package agreementhttp exposes the agreement CRUD and search endpoints.
package agreementhttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/retailcore/rebates-api/internal/auth"
	"github.com/retailcore/rebates-api/internal/docstore"
	"github.com/retailcore/rebates-api/internal/domain"
	"github.com/retailcore/rebates-api/internal/log"
	"github.com/retailcore/rebates-api/internal/postgres"
	"github.com/retailcore/rebates-api/internal/validate"
)

const defaultSearchLimit = 50

// AgreementStore is the persistence surface the handlers need.
type AgreementStore interface {
	Create(ctx context.Context, a domain.Agreement) (domain.Agreement, error)
	Replace(ctx context.Context, id int64, a domain.Agreement, updatedBy string) (domain.Agreement, error)
	GetByID(ctx context.Context, id int64) (domain.Agreement, error)
	Search(ctx context.Context, f domain.SearchFilter) (domain.SearchResult, error)
}

// API implements the agreement endpoints.
type API struct {
	store  AgreementStore
	docs   docstore.Archive
	logger log.Logger
}

// NewAPI creates the agreement API handler. docs may be nil; the document
// endpoints then answer 501.
func NewAPI(store AgreementStore, docs docstore.Archive, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{store: store, docs: docs, logger: logger}
}

// RegisterRoutes attaches the agreement endpoints to the router.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/agreements", func(r chi.Router) {
		r.With(auth.RequireRoles(auth.RoleCreateAgreements)).
			Post("/", api.HandleCreate)
		r.With(auth.RequireRoles(auth.RoleAccessAgreements)).
			Post("/search", api.HandleSearch)
		r.With(auth.RequireRoles(auth.RoleAccessAgreements)).
			Get("/{id}", api.HandleGet)
		r.With(auth.RequireRoles(auth.RoleModifyAgreements)).
			Put("/{id}", api.HandleReplace)
		r.With(auth.RequireRoles(auth.RoleModifyAgreements)).
			Put("/{id}/document", api.HandlePutDocument)
		r.With(auth.RequireRoles(auth.RoleAccessAgreements)).
			Get("/{id}/document", api.HandleGetDocument)
	})
}

// HandleCreate inserts a new agreement. The creator and business unit come
// from the authenticated user, never from the payload.
func (api *API) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	var a domain.Agreement
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		api.writeError(ctx, w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	a.BusinessUnitID = user.BusinessUnitID
	a.CreatedBy = user.Email

	if err := validate.Agreement(a); err != nil {
		api.writeValidation(ctx, w, err)
		return
	}

	created, err := api.store.Create(ctx, a)
	if errors.Is(err, postgres.ErrDuplicateAgreementNumber) {
		api.writeValidation(ctx, w, validate.Errors{{
			Field:   "agreement_number",
			Message: "already in use by an active agreement",
		}})
		return
	}
	if err != nil {
		api.logger.Error(ctx, err, "create agreement failed")
		api.writeError(ctx, w, http.StatusInternalServerError, "could not create agreement")
		return
	}

	api.logger.Info(ctx, "agreement created",
		"agreement_id", created.ID,
		"business_unit_id", created.BusinessUnitID,
	)
	api.writeJSON(ctx, w, http.StatusCreated, created)
}

// HandleGet returns one agreement with its products, store rules, and
// excluded flags.
func (api *API) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := api.agreementID(ctx, w, r)
	if !ok {
		return
	}

	a, err := api.store.GetByID(ctx, id)
	if errors.Is(err, postgres.ErrNotFound) {
		api.writeError(ctx, w, http.StatusNotFound, "agreement not found")
		return
	}
	if err != nil {
		api.logger.Error(ctx, err, "get agreement failed", "agreement_id", id)
		api.writeError(ctx, w, http.StatusInternalServerError, "could not load agreement")
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, a)
}

// HandleReplace swaps the agreement header and all child collections. The
// previous children are soft-deleted, never removed.
func (api *API) HandleReplace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	id, ok := api.agreementID(ctx, w, r)
	if !ok {
		return
	}

	var a domain.Agreement
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		api.writeError(ctx, w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	a.BusinessUnitID = user.BusinessUnitID

	if err := validate.Agreement(a); err != nil {
		api.writeValidation(ctx, w, err)
		return
	}

	updated, err := api.store.Replace(ctx, id, a, user.Email)
	if errors.Is(err, postgres.ErrNotFound) {
		api.writeError(ctx, w, http.StatusNotFound, "agreement not found")
		return
	}
	if err != nil {
		api.logger.Error(ctx, err, "replace agreement failed", "agreement_id", id)
		api.writeError(ctx, w, http.StatusInternalServerError, "could not update agreement")
		return
	}

	api.logger.Info(ctx, "agreement replaced", "agreement_id", id)
	api.writeJSON(ctx, w, http.StatusOK, updated)
}

// HandleSearch forwards the filter set to the search function. Filtering,
// ordering, and pagination all happen in the database.
func (api *API) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	var f domain.SearchFilter
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		api.writeError(ctx, w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	f.BusinessUnitID = user.BusinessUnitID
	if f.Limit == 0 {
		f.Limit = defaultSearchLimit
	}

	if err := validate.SearchFilter(f); err != nil {
		api.writeValidation(ctx, w, err)
		return
	}

	res, err := api.store.Search(ctx, f)
	if err != nil {
		api.logger.Error(ctx, err, "agreement search failed")
		api.writeError(ctx, w, http.StatusInternalServerError, "search failed")
		return
	}
	if res.Agreements == nil {
		res.Agreements = []domain.Agreement{}
	}
	api.writeJSON(ctx, w, http.StatusOK, res)
}

// HandlePutDocument archives the agreement's support document. The agreement
// must exist; uploads replace the previous document.
func (api *API) HandlePutDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	if api.docs == nil {
		api.writeError(ctx, w, http.StatusNotImplemented, "document archive not configured")
		return
	}
	id, ok := api.agreementID(ctx, w, r)
	if !ok {
		return
	}
	if _, err := api.store.GetByID(ctx, id); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			api.writeError(ctx, w, http.StatusNotFound, "agreement not found")
			return
		}
		api.logger.Error(ctx, err, "load agreement for document failed", "agreement_id", id)
		api.writeError(ctx, w, http.StatusInternalServerError, "could not archive document")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	err := api.docs.Put(ctx, user.BusinessUnitID, id, docstore.Document{
		Body:        r.Body,
		ContentType: contentType,
		UploadedBy:  user.Email,
	})
	if err != nil {
		api.logger.Error(ctx, err, "archive document failed", "agreement_id", id)
		api.writeError(ctx, w, http.StatusInternalServerError, "could not archive document")
		return
	}

	api.logger.Info(ctx, "document archived", "agreement_id", id, "content_type", contentType)
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetDocument streams back the archived document.
func (api *API) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	if api.docs == nil {
		api.writeError(ctx, w, http.StatusNotImplemented, "document archive not configured")
		return
	}
	id, ok := api.agreementID(ctx, w, r)
	if !ok {
		return
	}

	doc, err := api.docs.Get(ctx, user.BusinessUnitID, id)
	if errors.Is(err, docstore.ErrNotFound) {
		api.writeError(ctx, w, http.StatusNotFound, "no document archived for this agreement")
		return
	}
	if err != nil {
		api.logger.Error(ctx, err, "fetch document failed", "agreement_id", id)
		api.writeError(ctx, w, http.StatusInternalServerError, "could not fetch document")
		return
	}
	defer doc.Body.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	if doc.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, doc.Body); err != nil {
		api.logger.Warn(ctx, "stream document interrupted", "agreement_id", id, "error", err)
	}
}

func (api *API) agreementID(ctx context.Context, w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.writeError(ctx, w, http.StatusBadRequest, "agreement id must be a positive integer")
		return 0, false
	}
	return id, true
}

type errorResponse struct {
	Error  string                `json:"error"`
	Fields []validate.FieldError `json:"fields,omitempty"`
}

func (api *API) writeValidation(ctx context.Context, w http.ResponseWriter, err error) {
	var fields validate.Errors
	errors.As(err, &fields)
	api.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
		Error:  "validation failed",
		Fields: fields,
	})
}

func (api *API) writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	api.writeJSON(ctx, w, status, errorResponse{Error: msg})
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
