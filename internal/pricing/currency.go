package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/metrics"
)

// RateProvider fetches a live exchange rate from an external source.
type RateProvider interface {
	FetchRate(ctx context.Context, base, quote string) (float64, error)
}

// RateStore persists daily exchange rates.
type RateStore interface {
	GetCurrencyRate(ctx context.Context, base, quote string, date time.Time) (*db.CurrencyRate, error)
	SaveCurrencyRate(ctx context.Context, cr *db.CurrencyRate) error
}

type CurrencyService struct {
	store    RateStore
	provider RateProvider
	logger   *zap.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

func NewCurrencyService(store RateStore, provider RateProvider, logger *zap.Logger, collector *metrics.Collector) *CurrencyService {
	return &CurrencyService{
		store:    store,
		provider: provider,
		logger:   logger,
		metrics:  collector,
		now:      time.Now,
	}
}

// GetRate resolves the exchange rate for a date. Same-currency pairs are
// always exactly 1.0 with no lookup. Otherwise the stored rate wins; for
// today's date a missing rate triggers a live fetch that is persisted on
// success. The ultimate fallback is 1.0 with a warning: a rate outage
// must never block checkout.
func (s *CurrencyService) GetRate(ctx context.Context, base, quote string, date time.Time) float64 {
	if base == quote {
		return 1.0
	}

	stored, err := s.store.GetCurrencyRate(ctx, base, quote, date)
	if err == nil {
		return stored.Rate
	}
	if !errors.Is(err, db.ErrNotFound) {
		s.logger.Warn("Failed to load stored currency rate",
			zap.Error(err),
			zap.String("base", base),
			zap.String("quote", quote),
		)
	}

	if s.provider != nil && sameDay(date, s.now()) {
		live, err := s.provider.FetchRate(ctx, base, quote)
		if err == nil {
			s.persistRate(ctx, base, quote, live, date)
			return live
		}
		s.logger.Warn("Live rate fetch failed",
			zap.Error(err),
			zap.String("base", base),
			zap.String("quote", quote),
		)
	}

	s.logger.Warn("No exchange rate available, falling back to 1.0",
		zap.String("base", base),
		zap.String("quote", quote),
		zap.Time("date", date),
	)
	if s.metrics != nil {
		s.metrics.RecordCurrencyFallback()
	}
	return 1.0
}

// Convert applies the resolved rate and rounds to 2 decimals.
func (s *CurrencyService) Convert(ctx context.Context, amount float64, base, quote string, date time.Time) float64 {
	return round2(amount * s.GetRate(ctx, base, quote, date))
}

// RefreshRates pre-fetches today's rates for the given quote currencies,
// so checkout-path lookups hit the store instead of the provider.
func (s *CurrencyService) RefreshRates(ctx context.Context, base string, quotes []string) {
	if s.provider == nil {
		return
	}

	today := s.now()
	for _, quote := range quotes {
		if quote == base {
			continue
		}
		live, err := s.provider.FetchRate(ctx, base, quote)
		if err != nil {
			s.logger.Warn("Rate refresh failed",
				zap.Error(err),
				zap.String("base", base),
				zap.String("quote", quote),
			)
			continue
		}
		s.persistRate(ctx, base, quote, live, today)
	}
}

func (s *CurrencyService) persistRate(ctx context.Context, base, quote string, rate float64, date time.Time) {
	cr := &db.CurrencyRate{
		ID:            uuid.New().String(),
		BaseCurrency:  base,
		QuoteCurrency: quote,
		Rate:          rate,
		RateDate:      date,
		Source:        "live",
		CreatedAt:     s.now(),
	}
	if err := s.store.SaveCurrencyRate(ctx, cr); err != nil {
		s.logger.Warn("Failed to persist live rate",
			zap.Error(err),
			zap.String("base", base),
			zap.String("quote", quote),
		)
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// HTTPRateProvider calls an exchangerate-style API:
// GET {base}/latest?base=USD&symbols=EUR -> {"rates":{"EUR":0.92}}
type HTTPRateProvider struct {
	client  *http.Client
	baseURL string
}

func NewHTTPRateProvider(baseURL string, timeout time.Duration) *HTTPRateProvider {
	return &HTTPRateProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (p *HTTPRateProvider) FetchRate(ctx context.Context, base, quote string) (float64, error) {
	url := fmt.Sprintf("%s/latest?base=%s&symbols=%s", p.baseURL, base, quote)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate provider returned HTTP %d", resp.StatusCode)
	}

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode rate response: %w", err)
	}

	rate, ok := body.Rates[quote]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("rate provider returned no rate for %s", quote)
	}
	return rate, nil
}
