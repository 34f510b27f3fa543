package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guttosm/dsepulse/internal/domain/models"
)

func rec(code string, value float64, volume int64) models.StockRecord {
	return models.StockRecord{
		TradingCode: code,
		ValueMn:     decimal.NewFromFloat(value),
		Volume:      volume,
	}
}

func snap(records ...models.StockRecord) *models.Snapshot {
	return &models.Snapshot{
		Records:   records,
		FetchedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Source:    models.SourceLatest,
	}
}

func codes(s *models.Snapshot) []string {
	out := make([]string, len(s.Records))
	for i, r := range s.Records {
		out[i] = r.TradingCode
	}
	return out
}

func TestFilterBySymbol(t *testing.T) {
	base := snap(rec("ABBANK", 1, 1), rec("GP", 2, 2), rec("BEXIMCO", 3, 3))

	cases := []struct {
		name   string
		symbol string
		want   []string
	}{
		{name: "empty symbol returns all", symbol: "", want: []string{"ABBANK", "GP", "BEXIMCO"}},
		{name: "whitespace symbol returns all", symbol: "  ", want: []string{"ABBANK", "GP", "BEXIMCO"}},
		{name: "exact match", symbol: "GP", want: []string{"GP"}},
		{name: "case-insensitive", symbol: "beximco", want: []string{"BEXIMCO"}},
		{name: "no match is empty not error", symbol: "NOSUCH", want: []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := codes(FilterBySymbol(base, tc.symbol))
			if len(got) != len(tc.want) {
				t.Fatalf("want %v got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("want %v got %v", tc.want, got)
				}
			}
		})
	}

	// The input snapshot must be left untouched.
	if len(base.Records) != 3 {
		t.Fatalf("input snapshot mutated: %+v", base.Records)
	}
}

func TestTop_RankingAndTieBreaks(t *testing.T) {
	cases := []struct {
		name string
		in   *models.Snapshot
		n    int
		want []string
	}{
		{
			name: "value descending",
			in:   snap(rec("LOW", 1, 100), rec("HIGH", 50, 1), rec("MID", 10, 10)),
			n:    3,
			want: []string{"HIGH", "MID", "LOW"},
		},
		{
			name: "value tie broken by volume descending",
			in:   snap(rec("SMALLVOL", 10, 100), rec("BIGVOL", 10, 900)),
			n:    2,
			want: []string{"BIGVOL", "SMALLVOL"},
		},
		{
			name: "full tie broken by code ascending",
			in:   snap(rec("ZULU", 10, 100), rec("ALPHA", 10, 100), rec("MIKE", 10, 100)),
			n:    3,
			want: []string{"ALPHA", "MIKE", "ZULU"},
		},
		{
			name: "truncates to n",
			in:   snap(rec("A", 3, 1), rec("B", 2, 1), rec("C", 1, 1)),
			n:    2,
			want: []string{"A", "B"},
		},
		{
			name: "n larger than input",
			in:   snap(rec("A", 1, 1)),
			n:    30,
			want: []string{"A"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := codes(Top(tc.in, tc.n))
			if len(got) != len(tc.want) {
				t.Fatalf("want %v got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("want %v got %v", tc.want, got)
				}
			}
		})
	}
}

// TestTop_Deterministic re-ranks the same snapshot with opposite insertion
// orders and expects identical output; insertion order must never decide.
func TestTop_Deterministic(t *testing.T) {
	forward := snap(rec("ALPHA", 10, 100), rec("ZULU", 10, 100), rec("MIKE", 20, 5))
	reverse := snap(rec("MIKE", 20, 5), rec("ZULU", 10, 100), rec("ALPHA", 10, 100))

	first := codes(Top(forward, 3))
	second := codes(Top(reverse, 3))

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("ranking depends on insertion order: %v vs %v", first, second)
		}
	}

	// Re-running on the same input yields the same order.
	again := codes(Top(forward, 3))
	for i := range first {
		if first[i] != again[i] {
			t.Fatalf("ranking not stable across runs: %v vs %v", first, again)
		}
	}

	// Input order preserved on the original.
	if forward.Records[0].TradingCode != "ALPHA" {
		t.Fatalf("input snapshot mutated: %+v", forward.Records)
	}
}
