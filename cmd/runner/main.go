package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"market-maker-sim/internal/container"
)

func main() {
	cfgPath := flag.String("config", "", "配置文件路径，为空时只使用默认值与 MM_* 环境变量")
	flag.Parse()

	c, err := container.New(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := c.Build(); err != nil {
		fmt.Fprintf(os.Stderr, "初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go toggleOnSignal(ctx, c)

	files, err := c.Run(ctx)
	for _, f := range files {
		fmt.Println(f)
	}
	if err != nil {
		c.Logger().Error("runner exited with error", zap.Error(err))
		c.Close()
		os.Exit(1)
	}
}

// toggleOnSignal SIGUSR1 在报价与暂停之间切换。
func toggleOnSignal(ctx context.Context, c *container.Container) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	defer signal.Stop(sig)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			if err := c.TogglePause(); err != nil {
				c.Logger().Warn("toggle quoting failed", zap.Error(err))
			}
		}
	}
}
