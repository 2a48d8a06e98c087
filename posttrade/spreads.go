package posttrade

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var underscoreNumber = regexp.MustCompile(`^[0-9]+(_[0-9]+)?$`)

// NormalizeSizeLabel 统一 "0.1" / "0_1" / "spread_0_1" 等写法为 "0.1"。
func NormalizeSizeLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.ReplaceAll(s, "__", "_")
	if strings.HasPrefix(strings.ToLower(s), "spread_") {
		s = s[len("spread_"):]
	}
	if underscoreNumber.MatchString(s) {
		s = strings.ReplaceAll(s, "_", ".")
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d.Round(3).String()
	}
	return s
}

// SpreadColumns 识别价差列，返回 标签 -> 列名；时间列不会被当作价差列。
func SpreadColumns(t Table, sizes []string) map[string]string {
	cols := make(map[string]string)
	if len(t.Rows) == 0 {
		return cols
	}
	tcol := t.TimeColumn()

	for _, size := range sizes {
		want := NormalizeSizeLabel(size)
		for _, name := range t.Header {
			if NormalizeSizeLabel(name) == want {
				cols[want] = name
				break
			}
		}
	}
	for _, name := range t.Header {
		if strings.HasPrefix(strings.ToLower(name), "spread_") {
			cols[NormalizeSizeLabel(name)] = name
		}
	}
	for _, name := range t.Header {
		label := NormalizeSizeLabel(name)
		if _, err := decimal.NewFromString(label); err != nil || name == tcol {
			continue
		}
		if _, exists := cols[label]; !exists {
			cols[label] = name
		}
	}
	for label, name := range cols {
		if name == tcol {
			delete(cols, label)
		}
	}
	return cols
}

// SpreadColumnStats 单个价差列的统计。
type SpreadColumnStats struct {
	Label  string
	Column string
	Count  int
	Avg    float64
	Min    float64
	Max    float64
}

// SummarizeSpreads 按规模升序返回每列统计，忽略无法解析的值。
func SummarizeSpreads(t Table, sizes []string) []SpreadColumnStats {
	cols := SpreadColumns(t, sizes)
	var out []SpreadColumnStats
	for label, col := range cols {
		st := SpreadColumnStats{Label: label, Column: col, Min: math.Inf(1), Max: math.Inf(-1)}
		var sum float64
		for _, r := range t.Rows {
			v, ok := parseNumber(r[col])
			if !ok {
				continue
			}
			st.Count++
			sum += v
			st.Min = math.Min(st.Min, v)
			st.Max = math.Max(st.Max, v)
		}
		if st.Count == 0 {
			continue
		}
		st.Avg = sum / float64(st.Count)
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := decimal.NewFromString(out[i].Label)
		b, _ := decimal.NewFromString(out[j].Label)
		return a.LessThan(b)
	})
	return out
}
