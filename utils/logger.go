package utils

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerMu sync.RWMutex
	sugar    = zap.NewNop().Sugar()
)

// InitLogger создает логгер приложения
func InitLogger(level string, development bool) error {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("неверный уровень логирования %q: %v", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	SetLogger(logger)
	return nil
}

// SetLogger подменяет логгер (используется в тестах)
func SetLogger(logger *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	sugar = logger.Sugar()
}

// Logger возвращает текущий логгер
func Logger() *zap.SugaredLogger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return sugar
}

// Sync сбрасывает буферы логгера
func Sync() {
	_ = Logger().Sync()
}

// LogInfo логирует информационное сообщение
func LogInfo(format string, v ...interface{}) {
	Logger().Infof(format, v...)
}

// LogError логирует сообщение об ошибке
func LogError(format string, v ...interface{}) {
	Logger().Errorf(format, v...)
}

// LogDebug логирует отладочное сообщение
func LogDebug(format string, v ...interface{}) {
	Logger().Debugf(format, v...)
}

// LogErrorw логирует ошибку с набором полей
func LogErrorw(msg string, keysAndValues ...interface{}) {
	Logger().Errorw(msg, keysAndValues...)
}

// LogOperation логирует операцию с метриками
func LogOperation(operation string, startTime time.Time, err error) {
	duration := time.Since(startTime)
	// caller указывает на сервис, а не на этот файл
	log := Logger().WithOptions(zap.AddCallerSkip(1))
	if err != nil {
		log.Errorf("Operation %s failed after %v: %v", operation, duration, err)
	} else {
		log.Infof("Operation %s completed in %v", operation, duration)
	}
}
