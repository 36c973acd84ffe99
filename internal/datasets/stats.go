package datasets

import (
	"fmt"
	"time"

	"github.com/dataspect/dataspect/internal/domain"
	"github.com/dataspect/dataspect/internal/frame"
)

// Stats profiles a loaded frame. Numeric columns get min, max and mean;
// every column gets null and distinct counts. The result feeds dataset
// registration and prompt construction, so it carries no raw cell values.
func Stats(f *frame.Frame) domain.FrameStats {
	stats := domain.FrameStats{
		RowCount:    f.NumRows(),
		ColumnCount: f.NumColumns(),
		Columns:     make(map[string]domain.ColumnStats, f.NumColumns()),
	}

	for idx, name := range f.Columns {
		col := domain.ColumnStats{Type: domain.ColumnTypeString}
		distinct := make(map[string]struct{})

		var sum float64
		var numeric int
		var min, max *float64
		sawValue := false

		for _, row := range f.Rows {
			v := row[idx]
			if v == nil {
				col.NullCount++
				continue
			}
			distinct[fmt.Sprintf("%v", v)] = struct{}{}

			if !sawValue {
				col.Type = cellType(v)
				sawValue = true
			}

			var n float64
			switch x := v.(type) {
			case int64:
				n = float64(x)
			case float64:
				n = x
			default:
				continue
			}
			numeric++
			sum += n
			if min == nil || n < *min {
				min = ptr(n)
			}
			if max == nil || n > *max {
				max = ptr(n)
			}
		}

		col.DistinctCount = len(distinct)
		if numeric > 0 {
			col.Min = min
			col.Max = max
			col.Mean = ptr(sum / float64(numeric))
		}
		stats.Columns[name] = col
	}
	return stats
}

func cellType(v any) domain.ColumnType {
	switch v.(type) {
	case bool:
		return domain.ColumnTypeBoolean
	case int64:
		return domain.ColumnTypeInteger
	case float64:
		return domain.ColumnTypeFloat
	case time.Time:
		return domain.ColumnTypeTimestamp
	default:
		return domain.ColumnTypeString
	}
}

func ptr(f float64) *float64 { return &f }
