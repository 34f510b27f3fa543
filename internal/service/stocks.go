// Package service orchestrates fetching, parsing, caching, and querying of
// DSE market data. It is the only consumer of the upstream client and the
// single writer of the snapshot caches.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/guttosm/dsepulse/internal/cache"
	"github.com/guttosm/dsepulse/internal/domain/models"
	"github.com/guttosm/dsepulse/internal/logger"
	"github.com/guttosm/dsepulse/internal/scrape"
	"github.com/guttosm/dsepulse/internal/upstream"
)

// AllInstruments is the historical code value meaning "no instrument filter".
// It mirrors the upstream archive form's default option.
const AllInstruments = "All Instrument"

const (
	DefaultLiveTTL       = 60 * time.Second
	DefaultHistoricalTTL = 24 * time.Hour

	topN       = 30
	dateLayout = "2006-01-02"
)

// Result is a snapshot plus its degradation flag. Stale is set when the
// snapshot came from an expired cache entry after a failed refresh.
type Result struct {
	Snapshot *models.Snapshot
	Stale    bool
}

// HistResult is the historical counterpart of Result.
type HistResult struct {
	Series *models.HistoricalSeries
	Stale  bool
}

// StockService exposes the four public market-data operations consumed by
// the HTTP layer. All operations are read-only; the only mutation anywhere
// is the cache write after a successful fetch.
type StockService interface {
	GetStockData(ctx context.Context) (*Result, error)
	GetDsexData(ctx context.Context, symbol string) (*Result, error)
	GetTop30(ctx context.Context) (*Result, error)
	GetHistData(ctx context.Context, start, end, code string) (*HistResult, error)
}

// Config tunes cache expiry per source class.
type Config struct {
	LiveTTL       time.Duration
	HistoricalTTL time.Duration
}

type stockService struct {
	fetcher upstream.Fetcher
	snaps   *cache.TTLStore[*models.Snapshot]
	hists   *cache.TTLStore[*models.HistoricalSeries]
	group   singleflight.Group

	liveTTL time.Duration
	histTTL time.Duration
}

// NewStockService wires the service from its explicit dependencies.
func NewStockService(fetcher upstream.Fetcher, cfg Config) StockService {
	if cfg.LiveTTL <= 0 {
		cfg.LiveTTL = DefaultLiveTTL
	}
	if cfg.HistoricalTTL <= 0 {
		cfg.HistoricalTTL = DefaultHistoricalTTL
	}
	return &stockService{
		fetcher: fetcher,
		snaps:   cache.NewTTLStore[*models.Snapshot](),
		hists:   cache.NewTTLStore[*models.HistoricalSeries](),
		liveTTL: cfg.LiveTTL,
		histTTL: cfg.HistoricalTTL,
	}
}

// GetStockData returns the most recent full snapshot in upstream order.
func (s *stockService) GetStockData(ctx context.Context) (*Result, error) {
	return s.liveSnapshot(ctx, models.SourceLatest)
}

// GetDsexData returns the DSEX snapshot, narrowed to symbol when provided.
func (s *stockService) GetDsexData(ctx context.Context, symbol string) (*Result, error) {
	res, err := s.liveSnapshot(ctx, models.SourceDsex)
	if err != nil {
		return nil, err
	}
	return &Result{Snapshot: FilterBySymbol(res.Snapshot, symbol), Stale: res.Stale}, nil
}

// GetTop30 returns the top-30 snapshot re-ranked deterministically: value
// descending, volume descending, trading code ascending. Upstream's own page
// order is not trusted.
func (s *stockService) GetTop30(ctx context.Context) (*Result, error) {
	res, err := s.liveSnapshot(ctx, models.SourceTop30)
	if err != nil {
		return nil, err
	}
	return &Result{Snapshot: Top(res.Snapshot, topN), Stale: res.Stale}, nil
}

// GetHistData returns the day-end archive for [start, end], filtered to code
// unless code is empty or "All Instrument". Dates are validated before any
// fetch: a malformed date or start > end never reaches upstream.
func (s *stockService) GetHistData(ctx context.Context, start, end, code string) (*HistResult, error) {
	startDay, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, &ValidationError{Kind: KindInvalidDateFormat, Message: fmt.Sprintf("invalid start date %q, expected YYYY-MM-DD", start)}
	}
	endDay, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, &ValidationError{Kind: KindInvalidDateFormat, Message: fmt.Sprintf("invalid end date %q, expected YYYY-MM-DD", end)}
	}
	if startDay.After(endDay) {
		return nil, &ValidationError{Kind: KindInvalidDateRange, Message: "start date must not be after end date"}
	}

	filter := normalizeCode(code)
	key := fmt.Sprintf("%s:%s:%s:%s", models.SourceHistorical, start, end, strings.ToUpper(filter))

	if series, fresh, ok := s.hists.Get(key); ok && fresh {
		return &HistResult{Series: series}, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		if series, fresh, ok := s.hists.Get(key); ok && fresh {
			return series, nil
		}
		series, err := s.fetchSeries(ctx, start, end, filter)
		if err != nil {
			return nil, err
		}
		s.hists.Put(key, series, s.histTTL)
		return series, nil
	})
	if err != nil {
		if staleEligible(err) {
			if series, _, ok := s.hists.Get(key); ok {
				logger.L().Warn().Str("key", key).Err(err).Msg("serving stale historical series")
				return &HistResult{Series: series, Stale: true}, nil
			}
		}
		return nil, err
	}
	return &HistResult{Series: v.(*models.HistoricalSeries)}, nil
}

// liveSnapshot resolves one live source key through cache, coalesced fetch,
// and stale fallback, in that order.
//
// Concurrent callers hitting an expired key share a single upstream call via
// the singleflight group; all of them receive the same snapshot or the same
// error. When the fetch fails and an expired entry still exists, that entry
// is served instead with Stale set.
func (s *stockService) liveSnapshot(ctx context.Context, key models.SourceKey) (*Result, error) {
	if snap, fresh, ok := s.snaps.Get(string(key)); ok && fresh {
		return &Result{Snapshot: snap}, nil
	}

	v, err, shared := s.group.Do(string(key), func() (any, error) {
		// A waiter queued behind a completed flight re-checks the cache so
		// back-to-back misses don't refetch a snapshot that just landed.
		if snap, fresh, ok := s.snaps.Get(string(key)); ok && fresh {
			return snap, nil
		}
		raw, err := s.fetcher.Fetch(ctx, key, nil)
		if err != nil {
			return nil, err
		}
		snap, err := scrape.Parse(raw, key)
		if err != nil {
			return nil, err
		}
		if snap.DroppedRows > 0 {
			logger.L().Warn().Str("source", string(key)).Int("dropped", snap.DroppedRows).Msg("partial parse")
		}
		s.snaps.Put(string(key), snap, s.liveTTL)
		return snap, nil
	})
	if err != nil {
		if staleEligible(err) {
			if snap, _, ok := s.snaps.Get(string(key)); ok {
				logger.L().Warn().Str("source", string(key)).Err(err).Msg("serving stale snapshot")
				return &Result{Snapshot: snap, Stale: true}, nil
			}
		}
		return nil, err
	}

	if shared {
		logger.L().Debug().Str("source", string(key)).Msg("coalesced upstream fetch")
	}
	return &Result{Snapshot: v.(*models.Snapshot)}, nil
}

// fetchSeries pulls and parses one archive page. The instrument filter is
// pushed down to upstream when specific, and re-applied locally since the
// archive form is not trusted to honor it.
func (s *stockService) fetchSeries(ctx context.Context, start, end, filter string) (*models.HistoricalSeries, error) {
	params := url.Values{}
	params.Set("startDate", start)
	params.Set("endDate", end)
	params.Set("archive", "data")
	if filter != "" {
		params.Set("inst", filter)
	} else {
		params.Set("inst", AllInstruments)
	}

	raw, err := s.fetcher.Fetch(ctx, models.SourceHistorical, params)
	if err != nil {
		return nil, err
	}
	days, dropped, err := scrape.ParseHistorical(raw)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		logger.L().Warn().Str("source", "historical").Int("dropped", dropped).Msg("partial parse")
	}

	series := &models.HistoricalSeries{
		Start:       start,
		End:         end,
		Code:        filter,
		Days:        clampDays(days, start, end),
		FetchedAt:   time.Now().UTC(),
		DroppedRows: dropped,
	}
	if series.Code == "" {
		series.Code = AllInstruments
	}
	return filterSeries(series, filter), nil
}

// clampDays drops any day outside [start, end]; upstream is not trusted to
// honor the requested range.
func clampDays(days []models.HistoricalDay, start, end string) []models.HistoricalDay {
	out := days[:0]
	for _, d := range days {
		if d.Date >= start && d.Date <= end {
			out = append(out, d)
		}
	}
	return out
}

// staleEligible reports whether a refresh failure may be absorbed by serving
// an expired cache entry. Only transport failures qualify; a payload that no
// longer parses means the cached shape is suspect too, so parse errors always
// surface.
func staleEligible(err error) bool {
	var fe *upstream.Error
	return errors.As(err, &fe)
}

// normalizeCode maps the "no filter" spellings to the empty string.
func normalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, AllInstruments) {
		return ""
	}
	return code
}
