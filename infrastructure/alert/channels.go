package alert

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ZapChannel 日志告警通道
type ZapChannel struct {
	logger *zap.Logger
	name   string
}

// NewZapChannel 创建日志告警通道
func NewZapChannel(name string, logger *zap.Logger) *ZapChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapChannel{logger: logger.Named("alert"), name: name}
}

// Send 按级别写日志，附加字段展开为结构化字段
func (c *ZapChannel) Send(alert Alert) error {
	fields := make([]zap.Field, 0, len(alert.Fields)+2)
	fields = append(fields, zap.String("alert_level", string(alert.Level)), zap.Time("ts", alert.Timestamp))
	for k, v := range alert.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch alert.Level {
	case LevelCritical, LevelError:
		c.logger.Error(alert.Message, fields...)
	case LevelWarning:
		c.logger.Warn(alert.Message, fields...)
	default:
		c.logger.Info(alert.Message, fields...)
	}
	return nil
}

func (c *ZapChannel) Name() string {
	return c.name
}

// MemoryChannel 内存告警通道，保存全部告警供查询与测试
type MemoryChannel struct {
	name string

	mu        sync.Mutex
	alerts    []Alert
	shouldErr bool
}

func NewMemoryChannel(name string) *MemoryChannel {
	return &MemoryChannel{name: name}
}

func (c *MemoryChannel) Send(alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shouldErr {
		return errors.New("memory channel rejected alert")
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *MemoryChannel) Name() string {
	return c.name
}

// Alerts 返回已接收告警的副本
func (c *MemoryChannel) Alerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert(nil), c.alerts...)
}

// SetShouldError 设置是否返回错误
func (c *MemoryChannel) SetShouldError(shouldErr bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldErr = shouldErr
}

func (c *MemoryChannel) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = nil
}

func (c *MemoryChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}
