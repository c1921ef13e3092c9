package parquet

import (
	"testing"

	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/store"
	"github.com/xtxerr/relayhist/internal/store/storetest"
)

func TestParquetStore(t *testing.T) {
	for _, compression := range []string{"none", "snappy", "zstd", "gzip"} {
		t.Run(compression, func(t *testing.T) {
			storetest.Run(t, func(t *testing.T) store.Store {
				s, err := New(t.TempDir(), Options{Compression: ParseCompressionType(compression)})
				if err != nil {
					t.Fatalf("New: %v", err)
				}
				return s
			})
		})
	}
}

func TestRowConversion(t *testing.T) {
	iv := history.Interval{
		Start:   1000,
		End:     2000,
		Payload: history.Counts{Total: 9, ByKey: map[string]float64{"b": 2, "a": 7}},
	}

	row := IntervalToRow(iv)
	if len(row.Keys) != 2 || row.Keys[0] != "a" || row.Counts[0] != 7 {
		t.Errorf("row = %+v, want keys in order", row)
	}

	back, err := RowToInterval(&row, history.KindCounts)
	if err != nil {
		t.Fatalf("RowToInterval: %v", err)
	}
	if !back.Equal(iv) {
		t.Errorf("got %+v, want %+v", back, iv)
	}

	row.Counts = row.Counts[:1]
	if _, err := RowToInterval(&row, history.KindCounts); err == nil {
		t.Error("expected error for mismatched keys and counts")
	}
}
