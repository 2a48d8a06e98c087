package posttrade

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record CSV 中的一行，按表头取值。
type Record map[string]string

// Table 带表头的 CSV 数据。
type Table struct {
	Header []string
	Rows   []Record
}

// ReadCSV 读取带表头的 CSV；列数不足的行按空值补齐。
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	t := Table{Header: header}
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row %d: %w", len(t.Rows)+1, err)
		}
		rec := make(Record, len(header))
		for i, name := range header {
			if i < len(fields) {
				rec[name] = fields[i]
			} else {
				rec[name] = ""
			}
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// ReadCSVFile 打开并读取 CSV 文件。
func ReadCSVFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// timeColumnCandidates 时间列按顺序匹配。
var timeColumnCandidates = []string{"timestamp_iso", "timestamp", "time", "ts", "datetime", "date", "created_at"}

// TimeColumn 取第一行中非空的候选列；都没有时按名称包含 time/date 或等于 ts 猜测。
func TimeColumn(header []string, first Record) string {
	for _, name := range timeColumnCandidates {
		if v, ok := first[name]; ok && v != "" {
			return name
		}
	}
	for _, name := range header {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "time") || strings.Contains(lower, "date") || lower == "ts" {
			return name
		}
	}
	return ""
}

// TimeColumn 当前表的时间列。
func (t Table) TimeColumn() string {
	if len(t.Rows) == 0 {
		return ""
	}
	return TimeColumn(t.Header, t.Rows[0])
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime 支持数值纪元时间（大于 1e12 视为毫秒，否则为秒）与 ISO-8601；
// 末尾 Z 视为 UTC，无时区的时间按 UTC 解析。
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if d, err := decimal.NewFromString(s); err == nil {
		if d.GreaterThan(decimal.New(1, 12)) {
			d = d.Div(decimal.New(1000, 0))
		}
		nanos := d.Mul(decimal.New(1, 9)).Round(0)
		if nanos.Abs().GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
			return time.Time{}, false
		}
		return time.Unix(0, nanos.IntPart()).UTC(), true
	}
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseNumber 使用十进制解析，拒绝 NaN/Inf 及非数值。
func parseNumber(s string) (float64, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

func formatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).String()
}
