package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig - настройки логирования
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json или text
	Output      string // путь к файлу; пусто = stderr
	Development bool   // режим разработки (человекочитаемый вывод, caller)
}

// Logger оборачивает zap.Logger вместе с sugared вариантом
//
// Структурированные поля (zap.String и т.д.) - для основного пути,
// sugar - для Debugf/Infof форматирования в редких местах.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// Глобальный логгер процесса. Устанавливается один раз в main,
// дальше доступен через L() / пакетные функции.
var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger создаёт и настраивает логгер
//
// При невозможности открыть файл вывода происходит fallback на stderr -
// потеря логов хуже, чем лог не в том месте.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	var encoderCfg zapcore.EncoderConfig
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	sink := zapcore.AddSync(os.Stderr)
	if cfg.Output != "" {
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			sink = zapcore.AddSync(file)
		}
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddCaller())
	}

	zl := zap.New(core, opts...)

	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// parseLevel преобразует строку в уровень zap
// Неизвестные значения интерпретируются как info
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============================================================
// Глобальный логгер
// ============================================================

// InitGlobalLogger инициализирует и устанавливает глобальный логгер
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный логгер
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger возвращает глобальный логгер,
// создавая логгер по умолчанию при первом обращении
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	if globalLogger != nil {
		defer globalMu.RUnlock()
		return globalLogger
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - сокращение для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// ============================================================
// Методы Logger
// ============================================================

// With возвращает новый логгер с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// WithComponent добавляет имя компонента (dispatcher, ledger, api)
func (l *Logger) WithComponent(component string) *Logger {
	return l.With(zap.String("component", component))
}

// WithAccount добавляет имя аккаунта
func (l *Logger) WithAccount(account string) *Logger {
	return l.With(zap.String("account", account))
}

// WithSymbol добавляет торговый символ (XBTUSDTM и т.д.)
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(zap.String("symbol", symbol))
}

// WithOrderID добавляет биржевой ID ордера
func (l *Logger) WithOrderID(orderID string) *Logger {
	return l.With(zap.String("order_id", orderID))
}

// Sugar возвращает sugared логгер для printf-style логирования
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Пакетные функции (используют глобальный логгер)
// ============================================================

// Debug логирует сообщение на уровне debug
func Debug(msg string, fields ...zap.Field) {
	GetGlobalLogger().Logger.Debug(msg, fields...)
}

// Info логирует сообщение на уровне info
func Info(msg string, fields ...zap.Field) {
	GetGlobalLogger().Logger.Info(msg, fields...)
}

// Warn логирует сообщение на уровне warn
func Warn(msg string, fields ...zap.Field) {
	GetGlobalLogger().Logger.Warn(msg, fields...)
}

// Error логирует сообщение на уровне error
func Error(msg string, fields ...zap.Field) {
	GetGlobalLogger().Logger.Error(msg, fields...)
}

// Fatal логирует сообщение и завершает процесс
func Fatal(msg string, fields ...zap.Field) {
	GetGlobalLogger().Logger.Fatal(msg, fields...)
}

// Debugf логирует форматированное сообщение на уровне debug
func Debugf(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Debugf(template, args...)
}

// Infof логирует форматированное сообщение на уровне info
func Infof(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Infof(template, args...)
}

// Warnf логирует форматированное сообщение на уровне warn
func Warnf(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Warnf(template, args...)
}

// Errorf логирует форматированное сообщение на уровне error
func Errorf(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Errorf(template, args...)
}
