package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	"market-maker-sim/config"
	"market-maker-sim/export"
	"market-maker-sim/infrastructure/logger"
	"market-maker-sim/sim"
)

// 离线模拟：随机游走生成盘口与市场成交，用虚拟时钟驱动策略与账本，不连接交易所。
func main() {
	cfgPath := flag.String("config", "", "配置文件路径，为空时使用默认值")
	bars := flag.Int("bars", 3600, "模拟步数")
	step := flag.Duration("step", time.Second, "每步的虚拟时间")
	mid := flag.Float64("mid", 60000, "初始中间价")
	vol := flag.Float64("vol", 0.0005, "每步对数收益标准差")
	tradeProb := flag.Float64("tradeProb", 0.3, "每步出现市场成交的概率")
	tradeSize := flag.Float64("tradeSize", 0.1, "市场成交平均数量")
	halfSpread := flag.Float64("halfSpread", 0.5, "合成盘口半价差")
	seed := flag.Int64("seed", 0, "随机种子，0 表示按当前时间")
	outDir := flag.String("out", "", "停机文件输出目录，为空时不写")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))
	start := time.Now().UTC().Truncate(time.Second)
	path := sim.RandomWalk(rng, start, *bars, *step, *mid, *vol, *tradeProb, *tradeSize)

	bt := sim.DefaultBacktestConfig()
	bt.Runner = cfg.RunnerConfig()
	bt.HalfSpread = *halfSpread
	bt.LevelStep = *halfSpread
	runner, res, err := sim.RunBacktest(bt, path, logger.Wrap(zap.NewNop()))
	if err != nil {
		log.Fatal("simulation failed", zap.Error(err))
	}

	fmt.Printf("seed=%d bars=%d market_trades=%d fills=%d\n", *seed, res.Bars, res.MarketTrades, res.Fills)
	fmt.Printf("position=%.8f equity=%.2f total_pnl=%.2f max_drawdown=%.4f%% sharpe=%.4f\n",
		res.Portfolio.Position, res.FinalEquity, res.TotalPnL, res.MaxDrawdown*100, res.SharpeRatio)

	if *outDir != "" {
		files, err := export.WriteShutdown(*outDir, runner, res.EndTime)
		for _, f := range files {
			log.Info("file written", zap.String("path", f))
		}
		if err != nil {
			log.Error("export failed", zap.Error(err))
			os.Exit(1)
		}
	}
}
