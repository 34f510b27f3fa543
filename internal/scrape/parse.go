// Package scrape normalizes the HTML tables served by dsebd.org into domain
// records. The upstream layout is unversioned and treated as untrusted input:
// unknown columns are ignored, malformed rows are dropped and counted, and
// only a payload with no usable rows at all fails the operation.
package scrape

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/guttosm/dsepulse/internal/domain/models"
	"github.com/guttosm/dsepulse/internal/logger"
)

// field is a canonical column the normalizer knows how to fill.
type field int

const (
	fieldCode field = iota
	fieldLTP
	fieldHigh
	fieldLow
	fieldClose
	fieldYCP
	fieldChange
	fieldTrades
	fieldValue
	fieldVolume
	fieldDate
)

// headerAliases maps upstream column captions to canonical fields. Captions
// are matched after uppercasing and stripping '*' markers and surrounding
// whitespace, so "LTP*" and "ltp" both resolve to fieldLTP. Captions not in
// this table are ignored.
var headerAliases = map[string]field{
	"TRADING CODE": fieldCode,
	"LTP":          fieldLTP,
	"HIGH":         fieldHigh,
	"LOW":          fieldLow,
	"CLOSEP":       fieldClose,
	"CLOSE PRICE":  fieldClose,
	"YCP":          fieldYCP,
	"CHANGE":       fieldChange,
	"TRADE":        fieldTrades,
	"VALUE (MN)":   fieldValue,
	"VALUE":        fieldValue,
	"VOLUME":       fieldVolume,
	"DATE":         fieldDate,
}

// priceFields must all parse for a record to be accepted; fieldDate only
// applies to the day-end archive.
var priceFields = []field{fieldLTP, fieldHigh, fieldLow, fieldClose, fieldYCP}

// changeTolerance bounds the accepted gap between upstream's CHANGE column
// and LTP-YCP before a cross-check warning is logged.
var changeTolerance = decimal.NewFromFloat(0.01)

// Parse converts one raw page into a Snapshot.
//
// The page is scanned for a table whose header row contains a trading-code
// column and at least one price column; the first such table wins. Rows
// missing the trading code or with any unparseable price field are dropped
// individually and counted in Snapshot.DroppedRows. When the same trading
// code appears twice the later occurrence's values replace the earlier ones.
//
// Whole-payload failures return *ParseError: EmptyPayload when the table has
// no data rows, UnrecognizedFormat when no matching table exists or no row
// survived.
func Parse(raw []byte, source models.SourceKey) (*models.Snapshot, error) {
	rows, cols, err := tableRows(raw, string(source), false)
	if err != nil {
		return nil, err
	}

	snap := &models.Snapshot{
		Records:   make([]models.StockRecord, 0, len(rows)),
		FetchedAt: time.Now().UTC(),
		Source:    source,
	}
	seen := make(map[string]int, len(rows))

	for _, cells := range rows {
		rec, err := rowToRecord(cells, cols)
		if err != nil {
			snap.DroppedRows++
			logger.L().Warn().Str("source", string(source)).Err(err).Msg("dropped malformed row")
			continue
		}
		if i, dup := seen[rec.TradingCode]; dup {
			// Upstream convention: a repeated code is a later update.
			snap.Records[i] = rec
			continue
		}
		seen[rec.TradingCode] = len(snap.Records)
		snap.Records = append(snap.Records, rec)
	}

	if len(snap.Records) == 0 {
		return nil, &ParseError{Kind: KindUnrecognizedFormat, Source: string(source)}
	}
	return snap, nil
}

// ParseHistorical converts a day-end archive page into per-date record
// groups, ordered by date ascending. Row tolerance matches Parse; the date
// column is required per row in addition to code and prices.
func ParseHistorical(raw []byte) ([]models.HistoricalDay, int, error) {
	rows, cols, err := tableRows(raw, string(models.SourceHistorical), true)
	if err != nil {
		return nil, 0, err
	}

	dropped := 0
	byDate := make(map[string][]models.StockRecord)
	for _, cells := range rows {
		date, err := rowDate(cells, cols)
		if err != nil {
			dropped++
			logger.L().Warn().Str("source", "historical").Err(err).Msg("dropped malformed row")
			continue
		}
		rec, err := rowToRecord(cells, cols)
		if err != nil {
			dropped++
			logger.L().Warn().Str("source", "historical").Err(err).Msg("dropped malformed row")
			continue
		}
		byDate[date] = append(byDate[date], rec)
	}

	if len(byDate) == 0 {
		return nil, dropped, &ParseError{Kind: KindUnrecognizedFormat, Source: string(models.SourceHistorical)}
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	days := make([]models.HistoricalDay, 0, len(dates))
	for _, d := range dates {
		days = append(days, models.HistoricalDay{Date: d, Records: byDate[d]})
	}
	return days, dropped, nil
}

// tableRows locates the data table and returns its rows as cell text plus
// the header→column index mapping.
func tableRows(raw []byte, source string, needDate bool) ([][]string, map[field]int, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil, &ParseError{Kind: KindEmptyPayload, Source: source}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, &ParseError{Kind: KindUnrecognizedFormat, Source: source}
	}

	var rows [][]string
	var cols map[field]int

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		trs := table.Find("tr")
		if trs.Length() == 0 {
			return true
		}
		header := cellTexts(trs.First())
		m := columnIndex(header)
		if !usable(m, needDate) {
			return true
		}
		cols = m
		trs.Slice(1, trs.Length()).Each(func(_ int, tr *goquery.Selection) {
			cells := cellTexts(tr)
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
		})
		return false
	})

	if cols == nil {
		return nil, nil, &ParseError{Kind: KindUnrecognizedFormat, Source: source}
	}
	if len(rows) == 0 {
		return nil, nil, &ParseError{Kind: KindEmptyPayload, Source: source}
	}
	return rows, cols, nil
}

// usable reports whether a header mapping covers the minimum columns: the
// trading code, at least one price, and (for the archive) the date.
func usable(m map[field]int, needDate bool) bool {
	if _, ok := m[fieldCode]; !ok {
		return false
	}
	if needDate {
		if _, ok := m[fieldDate]; !ok {
			return false
		}
	}
	for _, f := range priceFields {
		if _, ok := m[f]; ok {
			return true
		}
	}
	return false
}

func cellTexts(tr *goquery.Selection) []string {
	var out []string
	tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		out = append(out, strings.TrimSpace(cell.Text()))
	})
	return out
}

func columnIndex(header []string) map[field]int {
	m := make(map[field]int, len(header))
	for i, h := range header {
		key := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(h, "*", "")))
		key = strings.Join(strings.Fields(key), " ")
		if f, ok := headerAliases[key]; ok {
			if _, taken := m[f]; !taken {
				m[f] = i
			}
		}
	}
	return m
}

// rowToRecord converts one row's cells into a StockRecord. It is strict per
// field: a price that does not parse as a decimal after cleaning, or a
// negative count, rejects the record. Missing optional columns (absent from
// the header entirely) become zero values.
func rowToRecord(cells []string, cols map[field]int) (models.StockRecord, error) {
	var rec models.StockRecord

	code, ok := cellAt(cells, cols, fieldCode)
	if !ok || code == "" {
		return rec, fmt.Errorf("missing trading code")
	}
	rec.TradingCode = code

	var err error
	if rec.LastTradePrice, err = priceAt(cells, cols, fieldLTP, "ltp"); err != nil {
		return rec, err
	}
	if rec.High, err = priceAt(cells, cols, fieldHigh, "high"); err != nil {
		return rec, err
	}
	if rec.Low, err = priceAt(cells, cols, fieldLow, "low"); err != nil {
		return rec, err
	}
	if rec.ClosePrice, err = priceAt(cells, cols, fieldClose, "closep"); err != nil {
		return rec, err
	}
	if rec.YesterdayClose, err = priceAt(cells, cols, fieldYCP, "ycp"); err != nil {
		return rec, err
	}

	if rec.Trades, err = countAt(cells, cols, fieldTrades, "trade"); err != nil {
		return rec, err
	}
	if rec.Volume, err = countAt(cells, cols, fieldVolume, "volume"); err != nil {
		return rec, err
	}

	if s, ok := cellAt(cells, cols, fieldValue); ok && s != "" && !placeholder(s) {
		v, err := parseDecimal(s)
		if err != nil {
			return rec, fmt.Errorf("invalid value: %q", s)
		}
		if v.IsNegative() {
			return rec, fmt.Errorf("negative value: %q", s)
		}
		rec.ValueMn = v
	}

	rec.Change = resolveChange(cells, cols, rec)
	return rec, nil
}

// resolveChange takes upstream's CHANGE column when present and parseable,
// deriving LTP-YCP otherwise. A provided value that disagrees with the
// derivation is kept but logged, as upstream sometimes rounds differently.
func resolveChange(cells []string, cols map[field]int, rec models.StockRecord) decimal.Decimal {
	derived := rec.LastTradePrice.Sub(rec.YesterdayClose)
	s, ok := cellAt(cells, cols, fieldChange)
	if !ok || s == "" {
		return derived
	}
	provided, err := parseDecimal(s)
	if err != nil {
		return derived
	}
	if provided.Sub(derived).Abs().GreaterThan(changeTolerance) {
		logger.L().Debug().
			Str("code", rec.TradingCode).
			Str("provided", provided.String()).
			Str("derived", derived.String()).
			Msg("change cross-check mismatch")
	}
	return provided
}

func rowDate(cells []string, cols map[field]int) (string, error) {
	s, ok := cellAt(cells, cols, fieldDate)
	if !ok || s == "" {
		return "", fmt.Errorf("missing date")
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q", s)
	}
	return d.Format("2006-01-02"), nil
}

func cellAt(cells []string, cols map[field]int, f field) (string, bool) {
	i, ok := cols[f]
	if !ok || i >= len(cells) {
		return "", false
	}
	return strings.TrimSpace(cells[i]), true
}

func priceAt(cells []string, cols map[field]int, f field, name string) (decimal.Decimal, error) {
	s, ok := cellAt(cells, cols, f)
	if !ok || placeholder(s) {
		// Column absent from this table layout, or upstream's explicit
		// no-trade marker; not a row fault.
		return decimal.Zero, nil
	}
	v, err := parseDecimal(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %q", name, s)
	}
	return v, nil
}

func countAt(cells []string, cols map[field]int, f field, name string) (int64, error) {
	s, ok := cellAt(cells, cols, f)
	if !ok || s == "" || placeholder(s) {
		return 0, nil
	}
	n, err := strconv.ParseInt(cleanNumber(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative %s: %q", name, s)
	}
	return n, nil
}

// parseDecimal converts an upstream numeric cell to a fixed-precision
// decimal. Thousands separators and currency markers are stripped first;
// whatever remains must be a plain decimal number.
func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(cleanNumber(s))
}

// placeholder reports whether a cell holds upstream's "--" marker, used on
// live pages for instruments with no trades yet. It reads as absent, never
// as a malformed value.
func placeholder(s string) bool {
	return s == "--"
}

func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "৳")
	s = strings.TrimPrefix(s, "Tk")
	return strings.TrimSpace(s)
}
