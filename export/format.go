package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

const (
	datetimeMillis = "2006-01-02 15:04:05.000"
	datetimeSecond = "2006-01-02 15:04:05"
)

// fixed 固定小数位输出。
func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

// plain 最短十进制表示。
func plain(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// epochSeconds 纪元秒，保留毫秒。
func epochSeconds(ts time.Time) string {
	return decimal.NewFromInt(ts.UnixMilli()).Shift(-3).StringFixed(3)
}

// ensureHeader 文件不存在时创建并写入表头。
func ensureHeader(path string, header []string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return writeAll(path, [][]string{header})
}

// appendRow 以追加方式写入一行。
func appendRow(path string, rec []string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(rec); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeAll 覆盖写入整个文件。
func writeAll(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
