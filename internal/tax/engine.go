package tax

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/toko-tax/internal/apportion"
	"github.com/noah-isme/toko-tax/internal/lineitem"
	"github.com/noah-isme/toko-tax/internal/money"
	"github.com/noah-isme/toko-tax/internal/obs"
)

// ErrInvalidArgument is returned when a required calculation input is missing.
var ErrInvalidArgument = errors.New("invalid tax calculation argument")

// Input describes a single calculation.
type Input struct {
	StoreCode string
	// Address may be nil, in which case no tax applies.
	Address        *Address
	Currency       money.Currency
	ShippingCost   *money.Amount
	Items          []lineitem.Item
	PreTaxDiscount *money.Amount
}

func (in Input) validate() error {
	switch {
	case in.Currency.IsZero():
		return fmt.Errorf("%w: currency is required", ErrInvalidArgument)
	case in.ShippingCost == nil:
		return fmt.Errorf("%w: shipping cost is required", ErrInvalidArgument)
	case in.Items == nil:
		return fmt.Errorf("%w: items are required", ErrInvalidArgument)
	case in.PreTaxDiscount == nil:
		return fmt.Errorf("%w: pre-tax discount is required", ErrInvalidArgument)
	}
	if in.ShippingCost.Currency != in.Currency {
		return fmt.Errorf("shipping cost: %w: %s vs %s", money.ErrCurrencyMismatch, in.ShippingCost.Currency, in.Currency)
	}
	if in.PreTaxDiscount.Currency != in.Currency {
		return fmt.Errorf("discount: %w: %s vs %s", money.ErrCurrencyMismatch, in.PreTaxDiscount.Currency, in.Currency)
	}
	return nil
}

// EngineConfig configures Engine collaborators.
type EngineConfig struct {
	Resolver Resolver
	// TaxCodes limits which tax codes are charged. When nil every code is active.
	TaxCodes       TaxCodeProvider
	Logger         zerolog.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Engine computes shipping and line-item taxes. It holds no per-calculation
// state and may be shared; the Result passed to it may not.
type Engine struct {
	resolver  Resolver
	taxCodes  TaxCodeProvider
	logger    zerolog.Logger
	tracer    trace.Tracer
	lineItems metric.Int64Counter
}

// NewEngine constructs an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	counter, err := mp.Meter("tax.engine").Int64Counter("tax.engine.line_items",
		metric.WithDescription("Line items processed by the tax engine."))
	if err != nil {
		counter = nil
	}
	return &Engine{
		resolver:  cfg.Resolver,
		taxCodes:  cfg.TaxCodes,
		logger:    cfg.Logger,
		tracer:    tp.Tracer("tax.engine"),
		lineItems: counter,
	}
}

// CalculateTaxesAndAddToResult computes taxes for in and adds them to result,
// which is created when nil. All inputs and collaborator lookups are checked
// before anything is added, so a failed call leaves result untouched.
func (e *Engine) CalculateTaxesAndAddToResult(ctx context.Context, result *Result, in Input) (*Result, error) {
	if err := in.validate(); err != nil {
		recordCalculation("", err)
		return result, err
	}
	if result == nil {
		result = NewResult()
	}
	if cur := result.DefaultCurrency(); !cur.IsZero() && cur != in.Currency {
		err := fmt.Errorf("%w: result in %s, calculation in %s", money.ErrCurrencyMismatch, cur, in.Currency)
		recordCalculation("", err)
		return result, err
	}

	tracer := e.tracer
	if tracer == nil {
		tracer = otel.Tracer("tax.engine")
	}
	ctx, span := tracer.Start(ctx, "tax.calculate")
	defer span.End()
	span.SetAttributes(
		attribute.String("tax.store", in.StoreCode),
		attribute.String("tax.currency", in.Currency.Code()),
		attribute.Int("tax.items", len(in.Items)),
	)

	calc, err := e.prepare(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordCalculation("", err)
		return result, err
	}
	span.SetAttributes(attribute.String("tax.mode", string(calc.mode)))

	result.SetDefaultCurrency(in.Currency)
	result.SetTaxInclusive(calc.mode == ModeInclusive)
	if err := calc.apply(result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordCalculation(calc.mode, err)
		return result, err
	}

	recordCalculation(calc.mode, nil)
	if obs.TaxLineItemsTotal != nil {
		obs.TaxLineItemsTotal.WithLabelValues(string(calc.mode)).Add(float64(len(calc.units)))
	}
	if e.lineItems != nil {
		e.lineItems.Add(ctx, int64(len(calc.units)), metric.WithAttributes(attribute.String("mode", string(calc.mode))))
	}
	e.logger.Debug().
		Str("store", in.StoreCode).
		Str("mode", string(calc.mode)).
		Int("items", len(calc.units)).
		Str("total_tax", result.TotalTaxes().Value.String()).
		Msg("tax calculated")
	return result, nil
}

// plan is everything a calculation needs, gathered before any mutation.
type plan struct {
	mode         Mode
	jurisdiction *Jurisdiction
	address      Address
	active       func(code string) bool
	currency     money.Currency
	shippingCost decimal.Decimal
	discounts    map[string]decimal.Decimal
	units        []*lineitem.Attributes
}

func (e *Engine) prepare(ctx context.Context, in Input) (*plan, error) {
	p := &plan{
		mode:         ModeExclusive,
		currency:     in.Currency,
		shippingCost: in.ShippingCost.Value,
		active:       func(string) bool { return true },
	}
	if in.Address != nil && e.resolver != nil {
		j, err := e.resolver.Resolve(ctx, in.StoreCode, in.Address)
		if err != nil {
			return nil, fmt.Errorf("resolve jurisdiction: %w", err)
		}
		if j != nil {
			p.jurisdiction = j
			p.address = *in.Address
			if j.Mode == ModeInclusive {
				p.mode = ModeInclusive
			}
		}
	}
	if p.jurisdiction != nil && e.taxCodes != nil {
		enabled, err := e.taxCodes.ActiveTaxCodes(ctx, in.StoreCode)
		if err != nil {
			return nil, fmt.Errorf("active tax codes: %w", err)
		}
		set := make(map[string]struct{}, len(enabled))
		for _, c := range enabled {
			set[c] = struct{}{}
		}
		p.active = func(code string) bool {
			_, ok := set[code]
			return ok
		}
	}

	p.units = lineitem.Taxable(in.Items)
	seen := make(map[string]struct{}, len(p.units))
	for _, u := range p.units {
		if u.PreDiscountTotal.Currency != in.Currency {
			return nil, fmt.Errorf("item %s: %w: %s vs %s", u.ID, money.ErrCurrencyMismatch, u.PreDiscountTotal.Currency, in.Currency)
		}
		if _, dup := seen[u.ID]; dup {
			return nil, fmt.Errorf("%w: %w: %s", ErrInvalidArgument, apportion.ErrDuplicateItem, u.ID)
		}
		seen[u.ID] = struct{}{}
	}

	discounts, err := apportion.ApportionDiscount(*in.PreTaxDiscount, in.Items)
	if err != nil {
		return nil, fmt.Errorf("apportion discount: %w", err)
	}
	p.discounts = discounts
	e.warnInactive(in.StoreCode, p)
	return p, nil
}

func (e *Engine) warnInactive(store string, p *plan) {
	if p.jurisdiction == nil {
		return
	}
	seen := map[string]bool{}
	check := func(code string) {
		if code == "" || seen[code] || p.active(code) {
			return
		}
		seen[code] = true
		if len(ratesFor(p.jurisdiction, p.address, code)) > 0 {
			e.logger.Warn().Str("store", store).Str("tax_code", code).Msg("tax code has rates but is not active for store")
		}
	}
	check(ShippingTaxCode)
	for _, u := range p.units {
		check(u.TaxCode)
	}
}

func (p *plan) rates(code string) []appliedRate {
	if !p.active(code) {
		return nil
	}
	return ratesFor(p.jurisdiction, p.address, code)
}

func (p *plan) amount(v decimal.Decimal) money.Amount { return money.New(v, p.currency) }

func (p *plan) apply(result *Result) error {
	if err := p.applyShipping(result); err != nil {
		return err
	}
	for _, u := range p.units {
		if err := p.applyItem(result, u); err != nil {
			return fmt.Errorf("item %s: %w", u.ID, err)
		}
	}
	return nil
}

func (p *plan) applyShipping(result *Result) error {
	rates := p.rates(ShippingTaxCode)
	sum := sumRates(rates)
	total := decimal.Zero
	for _, r := range rates {
		t := taxFor(p.mode, p.shippingCost, r, sum)
		if err := result.AddTaxValue(r.category, p.amount(t)); err != nil {
			return err
		}
		total = total.Add(t)
	}
	if err := result.AddShippingTax(p.amount(total)); err != nil {
		return err
	}
	before := p.shippingCost
	if p.mode == ModeInclusive {
		before = before.Sub(total)
	}
	return result.AddBeforeTaxShipping(p.amount(before))
}

func (p *plan) applyItem(result *Result, u *lineitem.Attributes) error {
	raw := u.PreDiscountTotal.Value
	discounted := raw.Sub(p.discounts[u.ID])

	rates := p.rates(u.TaxCode)
	sum := sumRates(rates)
	itemTax := decimal.Zero
	for _, r := range rates {
		t := taxFor(p.mode, discounted, r, sum)
		if err := result.AddTaxValue(r.category, p.amount(t)); err != nil {
			return err
		}
		itemTax = itemTax.Add(t)
	}
	if err := result.AddItemTax(u.ID, p.amount(itemTax)); err != nil {
		return err
	}

	before := raw
	if p.mode == ModeInclusive {
		before = raw.Sub(itemTax)
		if err := result.AddToTaxInItemPrice(p.amount(itemTax)); err != nil {
			return err
		}
	}
	if err := result.AddBeforeTaxItemPrice(p.amount(before)); err != nil {
		return err
	}
	return result.AddBeforeTaxItemPriceWithoutDiscount(p.amount(before))
}

func recordCalculation(mode Mode, err error) {
	if obs.TaxCalculationsTotal == nil {
		return
	}
	label := string(mode)
	if label == "" {
		label = "unknown"
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, money.ErrCurrencyMismatch):
		result = "invalid_argument"
	case errors.Is(err, apportion.ErrApportionmentOverflow), errors.Is(err, apportion.ErrInvalidDiscount):
		result = "invalid_discount"
	case errors.Is(err, apportion.ErrMissingSKU):
		result = "missing_sku"
	default:
		result = "error"
	}
	obs.TaxCalculationsTotal.WithLabelValues(label, result).Inc()
}
