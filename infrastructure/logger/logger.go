package logger

import (
	"fmt"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 封装zap日志器，附带做市模拟的领域事件
type Logger struct {
	*zap.Logger
	config Config
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level" env:"LEVEL"`             // debug, info, warn, error
	Outputs    []string `yaml:"outputs" env:"OUTPUTS"`         // stdout, file
	OutputFile string   `yaml:"output_file" env:"OUTPUT_FILE"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file" env:"ERROR_FILE"`   // 错误日志单独文件
	Format     string   `yaml:"format" env:"FORMAT"`           // json 或 console
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "json",
	}
}

// New 创建新的Logger实例
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core

	if slices.Contains(cfg.Outputs, "stdout") {
		var encoder zapcore.Encoder
		if cfg.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	if slices.Contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		fileWriter, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(fileWriter),
			level,
		))
	}

	// 错误日志单独文件
	if cfg.ErrorFile != "" {
		errorWriter, err := os.OpenFile(cfg.ErrorFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open error log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(errorWriter),
			zapcore.ErrorLevel,
		))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: zapLogger, config: cfg}, nil
}

// NewNop 丢弃所有输出，测试用
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), config: DefaultConfig()}
}

// Wrap 复用已有的 zap.Logger
func Wrap(z *zap.Logger) *Logger {
	if z == nil {
		return NewNop()
	}
	return &Logger{Logger: z, config: DefaultConfig()}
}

// WithFields 添加字段返回新的logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return &Logger{
		Logger: l.Logger.With(zapFields...),
		config: l.config,
	}
}

func eventFields(event string, fields ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event", event),
		zap.String("ts", time.Now().UTC().Format(time.RFC3339Nano)),
	}, fields...)
}

// LogFill 记录模拟成交
func (l *Logger) LogFill(id, side string, price, size, position float64) {
	l.Info("fill_event", eventFields("fill",
		zap.String("fill_id", id),
		zap.String("side", side),
		zap.Float64("price", price),
		zap.Float64("size", size),
		zap.Float64("position", position),
	)...)
}

// LogQuote 记录报价替换；某侧为空时价格记为 0
func (l *Logger) LogQuote(bid, ask, size float64) {
	l.Debug("quote_event", eventFields("quote_update",
		zap.Float64("bid", bid),
		zap.Float64("ask", ask),
		zap.Float64("size", size),
	)...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, fields ...zap.Field) {
	l.Error("error_event", eventFields("error", append([]zap.Field{zap.Error(err)}, fields...)...)...)
}

// LogRisk 记录风控事件
func (l *Logger) LogRisk(event string, fields ...zap.Field) {
	l.Warn("risk_event", eventFields(event, fields...)...)
}

// LogExport 记录导出结果
func (l *Logger) LogExport(path string, rows int, err error) {
	if err != nil {
		l.LogError(err, zap.String("path", path))
		return
	}
	l.Info("export_event", eventFields("export", zap.String("path", path), zap.Int("rows", rows))...)
}

// Close 关闭日志器
func (l *Logger) Close() error {
	return l.Sync()
}
