package alert

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"market-maker-sim/inventory"
)

// Level 告警级别
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Alert 告警信息
type Alert struct {
	Level     Level
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Manager 告警管理器：相同级别与消息的告警在限流间隔内只发送一次
type Manager struct {
	channels []Channel
	throttle *Throttler
	mu       sync.RWMutex
}

// Throttler 告警限流器
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Allow 检查是否允许发送
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	last, exists := t.lastSent[key]
	if !exists || now.Sub(last) >= t.interval {
		t.lastSent[key] = now
		return true
	}
	return false
}

// Clear 清空所有限流记录
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

// SetClock 替换限流与时间戳使用的时钟
func (m *Manager) SetClock(now func() time.Time) {
	m.throttle.mu.Lock()
	m.throttle.now = now
	m.throttle.mu.Unlock()
}

// SendAlert 发送到所有通道；被限流返回 false。所有通道都失败时返回合并后的错误。
func (m *Manager) SendAlert(alert Alert) (bool, error) {
	if alert.Timestamp.IsZero() {
		m.throttle.mu.Lock()
		alert.Timestamp = m.throttle.now()
		m.throttle.mu.Unlock()
	}
	if !m.throttle.Allow(fmt.Sprintf("%s:%s", alert.Level, alert.Message)) {
		return false, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs error
	sent := 0
	for _, ch := range m.channels {
		if err := ch.Send(alert); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("channel %s failed: %w", ch.Name(), err))
			continue
		}
		sent++
	}
	if sent == 0 && errs != nil {
		return true, errs
	}
	return true, nil
}

func (m *Manager) SendWarning(message string, fields map[string]interface{}) (bool, error) {
	return m.SendAlert(Alert{Level: LevelWarning, Message: message, Fields: fields})
}

func (m *Manager) SendCritical(message string, fields map[string]interface{}) (bool, error) {
	return m.SendAlert(Alert{Level: LevelCritical, Message: message, Fields: fields})
}

// ReportHealth 将健康检查的告警转发到通道：HIGH 为 CRITICAL，MEDIUM 为 WARNING。
// 返回实际发送的条数。
func (m *Manager) ReportHealth(rep inventory.HealthReport) (int, error) {
	fields := map[string]interface{}{
		"risk_level":      string(rep.RiskLevel),
		"score":           rep.Score,
		"utilization_pct": rep.UtilizationPct,
		"pnl":             rep.PnL,
	}
	var errs error
	sent := 0
	for _, a := range rep.Alerts {
		level := LevelWarning
		if a.Level == inventory.RiskHigh {
			level = LevelCritical
		}
		ok, err := m.SendAlert(Alert{Level: level, Message: a.Message, Fields: fields})
		errs = multierr.Append(errs, err)
		if ok && err == nil {
			sent++
		}
	}
	return sent, errs
}

func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// Channels 通道名称
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// ResetThrottle 重置限流器
func (m *Manager) ResetThrottle() {
	m.throttle.Clear()
}
