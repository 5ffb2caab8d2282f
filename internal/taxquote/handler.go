// Package taxquote exposes discount apportionment and tax quotes over HTTP.
package taxquote

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-tax/internal/apportion"
	"github.com/noah-isme/toko-tax/internal/common"
	"github.com/noah-isme/toko-tax/internal/lineitem"
	"github.com/noah-isme/toko-tax/internal/money"
	"github.com/noah-isme/toko-tax/internal/tax"
)

const maxBodyBytes = 1 << 20

// Handler serves quote endpoints.
type Handler struct {
	engine          *tax.Engine
	validate        *validator.Validate
	logger          zerolog.Logger
	defaultCurrency money.Currency
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Engine    *tax.Engine
	Validator *validator.Validate
	Logger    zerolog.Logger
	// DefaultCurrency applies when a request omits its currency.
	DefaultCurrency money.Currency
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validator
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Handler{
		engine:          cfg.Engine,
		validate:        v,
		logger:          cfg.Logger,
		defaultCurrency: cfg.DefaultCurrency,
	}
}

// Routes mounts the quote endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/discounts/apportion", h.Apportion)
	r.Post("/tax/quote", h.Quote)
}

// Apportion handles POST /api/v1/discounts/apportion.
func (h *Handler) Apportion(w http.ResponseWriter, r *http.Request) {
	var req ApportionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	cur, err := h.currency(req.Currency)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	discount, err := parseAmount(req.Discount, cur)
	if err != nil {
		h.writeError(w, r, validationError(err))
		return
	}
	items, err := toItems(req.Items, cur)
	if err != nil {
		h.writeError(w, r, validationError(err))
		return
	}
	shares, err := apportion.ApportionDiscount(discount, items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := ApportionResponse{Currency: cur.Code(), Shares: make(map[string]string, len(shares))}
	for id, share := range shares {
		out.Shares[id] = share.String()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Quote handles POST /api/v1/tax/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "tax engine not configured", nil)
		return
	}
	var req QuoteRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	cur, err := h.currency(req.Currency)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	shipping, err := parseAmount(req.ShippingCost, cur)
	if err != nil {
		h.writeError(w, r, validationError(err))
		return
	}
	discount, err := parseAmount(req.Discount, cur)
	if err != nil {
		h.writeError(w, r, validationError(err))
		return
	}
	items, err := toItems(req.Items, cur)
	if err != nil {
		h.writeError(w, r, validationError(err))
		return
	}

	result, err := h.engine.CalculateTaxesAndAddToResult(r.Context(), nil, tax.Input{
		StoreCode:      req.StoreCode,
		Address:        req.Address.toAddress(),
		Currency:       cur,
		ShippingCost:   &shipping,
		Items:          items,
		PreTaxDiscount: &discount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := tax.ApplyTaxes(result, items); err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": buildQuote(result, items)})
}

func buildQuote(result *tax.Result, items []lineitem.Item) QuoteResponse {
	out := QuoteResponse{
		CalculationID:     uuid.NewString(),
		Currency:          result.DefaultCurrency().Code(),
		TaxInclusive:      result.IsTaxInclusive(),
		ShippingTax:       view(result.ShippingTax()),
		BeforeTaxShipping: view(result.BeforeTaxShipping()),
		Subtotal:          view(result.Subtotal()),
		BeforeTaxSubtotal: view(result.BeforeTaxSubtotal()),
		TaxInItemPrice:    view(result.TaxInItemPrice()),
		TotalTaxes:        view(result.TotalTaxes()),
		Categories:        []CategoryView{},
		LineItems:         []LineItemView{},
	}
	for _, c := range result.CategoryTaxes() {
		out.Categories = append(out.Categories, CategoryView{Name: c.Category, Tax: view(c.Amount)})
	}
	for _, u := range lineitem.Taxable(items) {
		if u.Tax == nil {
			continue
		}
		out.LineItems = append(out.LineItems, LineItemView{ID: u.ID, SKU: u.SKU, TaxCode: u.TaxCode, Tax: view(*u.Tax)})
	}
	return out
}

func (h *Handler) currency(code string) (money.Currency, error) {
	if strings.TrimSpace(code) == "" {
		if h.defaultCurrency.IsZero() {
			return money.Currency{}, common.NewAppError("VALIDATION_ERROR", "currency is required", http.StatusBadRequest, nil)
		}
		return h.defaultCurrency, nil
	}
	cur, err := money.ParseCurrency(code)
	if err != nil {
		return money.Currency{}, validationError(err)
	}
	return cur, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return common.NewAppError("VALIDATION_ERROR", "invalid request body", http.StatusBadRequest, err)
	}
	if err := h.validate.Struct(dst); err != nil {
		appErr := common.NewAppError("VALIDATION_ERROR", "request validation failed", http.StatusBadRequest, err)
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make([]map[string]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				details = append(details, map[string]string{"field": fe.Namespace(), "rule": fe.Tag()})
			}
			appErr.Details = details
		}
		return appErr
	}
	return nil
}

func validationError(err error) *common.AppError {
	return common.NewAppError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest, err)
}

// toAppError maps calculation errors to API errors.
func toAppError(err error) *common.AppError {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, apportion.ErrInvalidDiscount):
		return common.Unprocessable("INVALID_DISCOUNT", err)
	case errors.Is(err, apportion.ErrApportionmentOverflow):
		return common.Unprocessable("APPORTIONMENT_OVERFLOW", err)
	case errors.Is(err, apportion.ErrMissingSKU):
		return common.Unprocessable("MISSING_SKU", err)
	case errors.Is(err, tax.ErrMissingTaxData):
		return common.Unprocessable("MISSING_TAX_DATA", err)
	case errors.Is(err, tax.ErrInvalidArgument),
		errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, apportion.ErrDuplicateItem),
		errors.Is(err, apportion.ErrNegativeWeight):
		return common.Unprocessable("INVALID_ARGUMENT", err)
	}
	return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("tax quote failed")
	}
	common.WriteError(w, appErr)
}
