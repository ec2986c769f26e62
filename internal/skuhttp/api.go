// Package skuhttp serves the SKU code lookup endpoint backed by the
// analytics warehouse.
package skuhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/retailcore/rebates-api/internal/auth"
	"github.com/retailcore/rebates-api/internal/domain"
	"github.com/retailcore/rebates-api/internal/log"
	"github.com/retailcore/rebates-api/internal/validate"
)

// SKUSource looks SKUs up by their codes.
type SKUSource interface {
	SKUsByCodes(ctx context.Context, codes []string) ([]domain.SKU, error)
}

// API implements the SKU lookup endpoint.
type API struct {
	skus   SKUSource
	logger log.Logger
}

func NewAPI(skus SKUSource, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{skus: skus, logger: logger}
}

func (api *API) RegisterRoutes(r chi.Router) {
	r.With(auth.RequireRoles(auth.RoleAccessAgreements)).
		Post("/api/v1/skus/codes", api.HandleLookupByCodes)
}

type lookupRequest struct {
	SKUCodes []string `json:"sku_codes"`
}

type lookupResponse struct {
	SKUs []domain.SKU `json:"skus"`
}

// HandleLookupByCodes validates the code list and queries the warehouse.
// The result is capped at 20 rows by the query itself.
func (api *API) HandleLookupByCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if api.skus == nil {
		api.writeError(ctx, w, http.StatusNotImplemented, "analytics warehouse not configured")
		return
	}

	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(ctx, w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if err := validate.SKUCodes(req.SKUCodes); err != nil {
		api.writeValidation(ctx, w, err)
		return
	}

	skus, err := api.skus.SKUsByCodes(ctx, req.SKUCodes)
	if err != nil {
		api.logger.Error(ctx, err, "sku lookup failed", "code_count", len(req.SKUCodes))
		api.writeError(ctx, w, http.StatusBadGateway, "could not query the warehouse")
		return
	}
	if skus == nil {
		skus = []domain.SKU{}
	}
	api.writeJSON(ctx, w, http.StatusOK, lookupResponse{SKUs: skus})
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
