// Package masterdatahttp serves the reference data endpoints: stores,
// suppliers, merchandising divisions, lookup values, and module grants.
package masterdatahttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/retailcore/rebates-api/internal/auth"
	"github.com/retailcore/rebates-api/internal/domain"
	"github.com/retailcore/rebates-api/internal/log"
	"github.com/retailcore/rebates-api/internal/postgres"
	"github.com/retailcore/rebates-api/internal/validate"
)

// StoreStore is the stores persistence surface.
type StoreStore interface {
	ListActive(ctx context.Context, businessUnitID int) ([]domain.Store, error)
	GetByID(ctx context.Context, id int64) (domain.Store, error)
	Create(ctx context.Context, s domain.Store) (domain.Store, error)
	Update(ctx context.Context, id int64, s domain.Store) (domain.Store, error)
}

// SupplierStore is the suppliers persistence surface, keyed by RUC.
type SupplierStore interface {
	ListActive(ctx context.Context) ([]domain.Supplier, error)
	GetByRUC(ctx context.Context, ruc string) (domain.Supplier, error)
	Create(ctx context.Context, s domain.Supplier) (domain.Supplier, error)
	Update(ctx context.Context, ruc string, s domain.Supplier) (domain.Supplier, error)
}

// DivisionSource reads merchandising divisions from the warehouse.
type DivisionSource interface {
	Divisions(ctx context.Context) ([]domain.Division, error)
}

// LookupStore reads lookup categories and values.
type LookupStore interface {
	ValuesByCategory(ctx context.Context, categoryCode string) ([]domain.LookupValue, error)
	Value(ctx context.Context, categoryCode, optionKey string) (domain.LookupValue, error)
}

// ModuleStore reads module grants per user.
type ModuleStore interface {
	ForUser(ctx context.Context, email string, businessUnitID int) ([]domain.Module, error)
}

// API implements the master data endpoints.
type API struct {
	stores    StoreStore
	suppliers SupplierStore
	divisions DivisionSource
	lookups   LookupStore
	modules   ModuleStore
	logger    log.Logger
}

func NewAPI(stores StoreStore, suppliers SupplierStore, divisions DivisionSource,
	lookups LookupStore, modules ModuleStore, logger log.Logger) *API {

	if logger == nil {
		logger = log.Nop()
	}
	return &API{
		stores:    stores,
		suppliers: suppliers,
		divisions: divisions,
		lookups:   lookups,
		modules:   modules,
		logger:    logger,
	}
}

// RegisterRoutes attaches the master data endpoints to the router. Reads
// need ACCESS_AGREEMENTS; writes need MODIFY_AGREEMENTS.
func (api *API) RegisterRoutes(r chi.Router) {
	read := auth.RequireRoles(auth.RoleAccessAgreements)
	write := auth.RequireRoles(auth.RoleModifyAgreements)

	r.Route("/api/v1/stores", func(r chi.Router) {
		r.With(read).Get("/", api.HandleListStores)
		r.With(read).Get("/{id}", api.HandleGetStore)
		r.With(write).Post("/", api.HandleCreateStore)
		r.With(write).Put("/{id}", api.HandleUpdateStore)
	})
	r.Route("/api/v1/suppliers", func(r chi.Router) {
		r.With(read).Get("/", api.HandleListSuppliers)
		r.With(read).Get("/{ruc}", api.HandleGetSupplier)
		r.With(write).Post("/", api.HandleCreateSupplier)
		r.With(write).Put("/{ruc}", api.HandleUpdateSupplier)
	})
	r.With(read).Get("/api/v1/divisions", api.HandleListDivisions)
	r.With(read).Get("/api/v1/lookups/{category}", api.HandleLookupValues)
	r.With(read).Get("/api/v1/lookups/{category}/{option}", api.HandleLookupValue)
	r.With(read).Get("/api/v1/modules/user", api.HandleUserModules)
}

func (api *API) HandleListStores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	stores, err := api.stores.ListActive(ctx, user.BusinessUnitID)
	if err != nil {
		api.logger.Error(ctx, err, "list stores failed")
		api.writeError(ctx, w, http.StatusInternalServerError, "could not list stores")
		return
	}
	if stores == nil {
		stores = []domain.Store{}
	}
	api.writeJSON(ctx, w, http.StatusOK, stores)
}

func (api *API) HandleGetStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.writeError(ctx, w, http.StatusBadRequest, "store id must be a positive integer")
		return
	}
	s, err := api.stores.GetByID(ctx, id)
	if errors.Is(err, postgres.ErrNotFound) {
		api.writeError(ctx, w, http.StatusNotFound, "store not found")
		return
	}
	if err != nil {
		api.logger.Error(ctx, err, "get store failed", "store_id", id)
		api.writeError(ctx, w, http.StatusInternalServerError, "could not load store")
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, s)
}

func (api *API) HandleCreateStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	var s domain.Store
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		api.writeError(ctx, w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	s.BusinessUnitID = user.BusinessUnitID

	if err := validate.Store(s); err != nil {
		api.writeValidation(ctx, w, err)
		return
	}
	created, err := api.stores.Create(ctx, s)
	if err != nil {
		api.logger.Error(ctx, err, "create store failed")
		api.writeError(ctx, w, http.StatusInternalServerError, "could not create store")
		return
	}
	api.writeJSON(ctx, w, http.StatusCreated, created)
}

func (api *API) HandleUpdateStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.writeError(ctx, w, http.StatusBadRequest, "store id must be a positive integer")
		return
	}
	var s domain.Store
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		api.writeError(ctx, w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	s.BusinessUnitID = user.BusinessUnitID

	if err := validate.Store(s); err != nil {
		api.writeValidation(ctx, w, err)
		return
	}
	updated, err := api.stores.Update(ctx, id, s)
	if errors.Is(err, postgres.ErrNotFound) {
		api.writeError(ctx, w, http.StatusNotFound, "store not found")
		return
	}
	if err != nil {
		api.logger.Error(ctx, err, "update store failed", "store_id", id)
		api.writeError(ctx, w, http.StatusInternalServerError, "could not update store")
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, updated)
}

func (api *API) HandleListSuppliers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	suppliers, err := api.suppliers.ListActive(ctx)
	if err != nil {
		api.logger.Error(ctx, err, "list suppliers failed")
		api.writeError(ctx, w, http.StatusInternalServerError, "could not list suppliers")
		return
	}
	if suppliers == nil {
		suppliers = []domain.Supplier{}
	}
	api.writeJSON(ctx, w, http.StatusOK, suppliers)
}

func (api *API) HandleGetSupplier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ruc := chi.URLParam(r, "ruc")
	s, err := api.suppliers.GetByRUC(ctx, ruc)
	if errors.Is(err, postgres.ErrNotFound) {
		api.writeError(ctx, w, http.StatusNotFound, "supplier not found")
		return
	}
	if err != nil {
		api.logger.Error(ctx, err, "get supplier failed", "ruc", ruc)
		api.writeError(ctx, w, http.StatusInternalServerError, "could not load supplier")
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, s)
}

func (api *API) HandleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var s domain.Supplier
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		api.writeError(ctx, w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if err := validate.Supplier(s); err != nil {
		api.writeValidation(ctx, w, err)
		return
	}
	created, err := api.suppliers.Create(ctx, s)
	if err != nil {
		api.logger.Error(ctx, err, "create supplier failed")
		api.writeError(ctx, w, http.StatusInternalServerError, "could not create supplier")
		return
	}
	api.writeJSON(ctx, w, http.StatusCreated, created)
}

func (api *API) HandleUpdateSupplier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ruc := chi.URLParam(r, "ruc")
	var s domain.Supplier
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		api.writeError(ctx, w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	s.RUC = ruc

	if err := validate.Supplier(s); err != nil {
		api.writeValidation(ctx, w, err)
		return
	}
	updated, err := api.suppliers.Update(ctx, ruc, s)
	if errors.Is(err, postgres.ErrNotFound) {
		api.writeError(ctx, w, http.StatusNotFound, "supplier not found")
		return
	}
	if err != nil {
		api.logger.Error(ctx, err, "update supplier failed", "ruc", ruc)
		api.writeError(ctx, w, http.StatusInternalServerError, "could not update supplier")
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, updated)
}

// HandleListDivisions reads the merchandising divisions from the warehouse.
func (api *API) HandleListDivisions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if api.divisions == nil {
		api.writeError(ctx, w, http.StatusNotImplemented, "analytics warehouse not configured")
		return
	}
	divisions, err := api.divisions.Divisions(ctx)
	if err != nil {
		api.logger.Error(ctx, err, "list divisions failed")
		api.writeError(ctx, w, http.StatusBadGateway, "could not read divisions from warehouse")
		return
	}
	if divisions == nil {
		divisions = []domain.Division{}
	}
	api.writeJSON(ctx, w, http.StatusOK, divisions)
}

func (api *API) HandleLookupValues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	category := strings.ToUpper(chi.URLParam(r, "category"))
	values, err := api.lookups.ValuesByCategory(ctx, category)
	if errors.Is(err, postgres.ErrNotFound) {
		api.writeError(ctx, w, http.StatusNotFound, "unknown lookup category")
		return
	}
	if err != nil {
		api.logger.Error(ctx, err, "list lookup values failed", "category", category)
		api.writeError(ctx, w, http.StatusInternalServerError, "could not load lookup values")
		return
	}
	if values == nil {
		values = []domain.LookupValue{}
	}
	api.writeJSON(ctx, w, http.StatusOK, values)
}

func (api *API) HandleLookupValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	category := strings.ToUpper(chi.URLParam(r, "category"))
	option := chi.URLParam(r, "option")
	v, err := api.lookups.Value(ctx, category, option)
	if errors.Is(err, postgres.ErrNotFound) {
		api.writeError(ctx, w, http.StatusNotFound, "lookup value not found")
		return
	}
	if err != nil {
		api.logger.Error(ctx, err, "get lookup value failed", "category", category, "option", option)
		api.writeError(ctx, w, http.StatusInternalServerError, "could not load lookup value")
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, v)
}

// HandleUserModules returns the modules granted to the calling user in their
// business unit.
func (api *API) HandleUserModules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.UserFromContext(ctx)

	modules, err := api.modules.ForUser(ctx, user.Email, user.BusinessUnitID)
	if err != nil {
		api.logger.Error(ctx, err, "list user modules failed")
		api.writeError(ctx, w, http.StatusInternalServerError, "could not load modules")
		return
	}
	if modules == nil {
		modules = []domain.Module{}
	}
	api.writeJSON(ctx, w, http.StatusOK, modules)
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
