package service

import (
	"sort"
	"strings"

	"github.com/guttosm/dsepulse/internal/domain/models"
)

// FilterBySymbol returns the snapshot's records whose trading code matches
// symbol, compared case-insensitively. An empty symbol returns the snapshot
// unchanged. The input snapshot is never modified.
func FilterBySymbol(snap *models.Snapshot, symbol string) *models.Snapshot {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return snap
	}

	out := *snap
	out.Records = make([]models.StockRecord, 0, 1)
	for _, rec := range snap.Records {
		if strings.EqualFold(rec.TradingCode, symbol) {
			out.Records = append(out.Records, rec)
		}
	}
	return &out
}

// Top returns the n highest-ranked records of the snapshot.
//
// Ranking is by trading value (millions) descending; ties break by volume
// descending, then by trading code ascending. The ordering is fully
// deterministic: re-ranking the same snapshot always yields the same result,
// regardless of upstream insertion order.
func Top(snap *models.Snapshot, n int) *models.Snapshot {
	out := *snap
	out.Records = append([]models.StockRecord(nil), snap.Records...)

	sort.SliceStable(out.Records, func(i, j int) bool {
		a, b := out.Records[i], out.Records[j]
		if c := a.ValueMn.Cmp(b.ValueMn); c != 0 {
			return c > 0
		}
		if a.Volume != b.Volume {
			return a.Volume > b.Volume
		}
		return a.TradingCode < b.TradingCode
	})

	if n >= 0 && len(out.Records) > n {
		out.Records = out.Records[:n]
	}
	return &out
}

// filterSeries narrows every day of the series to the given instrument code,
// compared case-insensitively. Days with no matching trade stay in the series
// with an empty record list. An empty code returns the series unchanged.
func filterSeries(series *models.HistoricalSeries, code string) *models.HistoricalSeries {
	code = strings.TrimSpace(code)
	if code == "" {
		return series
	}

	out := *series
	out.Days = make([]models.HistoricalDay, 0, len(series.Days))
	for _, day := range series.Days {
		filtered := models.HistoricalDay{Date: day.Date, Records: []models.StockRecord{}}
		for _, rec := range day.Records {
			if strings.EqualFold(rec.TradingCode, code) {
				filtered.Records = append(filtered.Records, rec)
			}
		}
		out.Days = append(out.Days, filtered)
	}
	return &out
}
