package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceKey identifies one upstream data source. Each key maps to a single
// DSE page and owns its own cache slot.
type SourceKey string

const (
	SourceLatest     SourceKey = "latest"
	SourceDsex       SourceKey = "dsex"
	SourceTop30      SourceKey = "top30"
	SourceHistorical SourceKey = "historical"
)

// StockRecord is one instrument's snapshot at a point in time, normalized
// from whatever table layout the upstream page served.
//
// Price fields are fixed-precision decimals; the upstream publishes formatted
// strings ("1,234.50") and binary floats would drift on comparison.
//
// swagger:model StockRecord
type StockRecord struct {
	TradingCode    string          `json:"trading_code" example:"ABBANK"`
	LastTradePrice decimal.Decimal `json:"ltp" swaggertype:"string" example:"12.50"`
	High           decimal.Decimal `json:"high" swaggertype:"string" example:"12.70"`
	Low            decimal.Decimal `json:"low" swaggertype:"string" example:"12.10"`
	ClosePrice     decimal.Decimal `json:"closep" swaggertype:"string" example:"12.40"`
	YesterdayClose decimal.Decimal `json:"ycp" swaggertype:"string" example:"12.00"`
	Change         decimal.Decimal `json:"change" swaggertype:"string" example:"0.50"`
	Trades         int64           `json:"trade" example:"1042"`
	ValueMn        decimal.Decimal `json:"value_mn" swaggertype:"string" example:"25.103"`
	Volume         int64           `json:"volume" example:"1500000"`
}

// Snapshot is an ordered set of records fetched and parsed together.
// Insertion order reflects upstream ordering. A Snapshot is never mutated
// after the parser returns it; filtering and ranking produce new ones.
type Snapshot struct {
	Records     []StockRecord `json:"records"`
	FetchedAt   time.Time     `json:"fetched_at"`
	Source      SourceKey     `json:"source"`
	DroppedRows int           `json:"dropped_rows,omitempty"`
}

// HistoricalDay holds the records for one trading date. A day with no trades
// for the requested instrument is present with an empty record list.
type HistoricalDay struct {
	Date    string        `json:"date" example:"2024-01-02"`
	Records []StockRecord `json:"records"`
}

// HistoricalSeries maps a date range onto per-day snapshots, ordered by date
// ascending. Dates are always within [Start, End] inclusive.
type HistoricalSeries struct {
	Start       string          `json:"start" example:"2024-01-01"`
	End         string          `json:"end" example:"2024-01-31"`
	Code        string          `json:"code" example:"ABBANK"`
	Days        []HistoricalDay `json:"days"`
	FetchedAt   time.Time       `json:"fetched_at"`
	DroppedRows int             `json:"dropped_rows,omitempty"`
}
