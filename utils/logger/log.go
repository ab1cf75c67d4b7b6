package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger   *zap.Logger
	root     *zap.SugaredLogger
	atom     = zap.NewAtomicLevel()
	initOnce sync.Once
)

func InitLogger() {
	initOnce.Do(func() {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.RFC3339TimeEncoder

		logger = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.Lock(os.Stdout),
			atom,
		))
		root = logger.Sugar()
	})
}

func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// NewLogger returns a named child of the root logger, initializing it on first use.
func NewLogger(name string) *zap.SugaredLogger {
	InitLogger()
	return root.Named(name)
}

func SetDebug(enable bool) {
	if enable {
		atom.SetLevel(zap.DebugLevel)
		return
	}
	atom.SetLevel(zap.InfoLevel)
}
