package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"market-maker-sim/infrastructure/logger"
	"market-maker-sim/posttrade"
)

type options struct {
	trades       string
	spreads      string
	markCol      string
	maxInventory float64
	sizes        string
	out          string
}

func parseFlags(args []string) (options, error) {
	var o options
	fsFlags := flag.NewFlagSet("pnl_report", flag.ContinueOnError)
	fsFlags.StringVar(&o.trades, "trades", "trades.csv", "成交日志 CSV")
	fsFlags.StringVar(&o.spreads, "spreads", "spreads.csv", "价差历史 CSV，缺失时跳过")
	fsFlags.StringVar(&o.markCol, "markcol", "", "盯市价格列名，为空时使用成交价")
	fsFlags.Float64Var(&o.maxInventory, "max-inventory", 0, "持仓绝对值上限，<=0 表示不裁剪")
	fsFlags.StringVar(&o.sizes, "sizes", "0.1,1,5,10", "识别价差列的规模列表")
	fsFlags.StringVar(&o.out, "out", "pnl_from_trades.csv", "重算结果输出路径")
	if err := fsFlags.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	cfg := logger.DefaultConfig()
	cfg.Format = "console"
	log, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if err := run(opts, os.Stdout, log.Logger); err != nil {
		log.Error("pnl report failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(opts options, w io.Writer, log *zap.Logger) error {
	trades, err := posttrade.ReadCSVFile(opts.trades)
	if err != nil {
		return fmt.Errorf("读取成交日志失败: %w", err)
	}

	s := posttrade.Summarize(trades)
	fmt.Fprintf(w, "Trades: %d (buy %d / sell %d)\n", s.Count, s.Buys, s.Sells)
	fmt.Fprintf(w, "Volume: buy %s / sell %s\n", num(s.VolumeBuy), num(s.VolumeSell))
	if s.Count > 0 {
		fmt.Fprintf(w, "Period: %s -> %s\n", s.First, s.Last)
	}

	rows := posttrade.Reconstruct(trades, posttrade.Options{
		MarkColumn:   opts.markCol,
		MaxInventory: opts.maxInventory,
	})
	if len(rows) == 0 {
		log.Warn("no pnl rows computed", zap.String("trades", opts.trades))
	} else {
		if err := posttrade.WritePnLFile(opts.out, rows); err != nil {
			return err
		}
		last := rows[len(rows)-1]
		fmt.Fprintf(w, "Final: position %s, realized %s, unrealized %s, total %s\n",
			num(last.Position), num(last.RealizedPnL), num(last.UnrealizedPnL), num(last.TotalPnL))
		log.Info("pnl written", zap.String("path", opts.out), zap.Int("rows", len(rows)))
	}

	spreads, err := posttrade.ReadCSVFile(opts.spreads)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("spreads file not found, skipping", zap.String("path", opts.spreads))
		return nil
	case err != nil:
		return fmt.Errorf("读取价差历史失败: %w", err)
	}
	stats := posttrade.SummarizeSpreads(spreads, splitSizes(opts.sizes))
	if len(stats) == 0 {
		log.Warn("no spread columns recognised", zap.String("path", opts.spreads))
		return nil
	}
	fmt.Fprintln(w, "Spreads:")
	for _, st := range stats {
		fmt.Fprintf(w, "  %-6s n=%d avg=%s min=%s max=%s\n", st.Label, st.Count, num(st.Avg), num(st.Min), num(st.Max))
	}
	return nil
}

func splitSizes(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func num(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
