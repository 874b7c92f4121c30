package logging

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileMaxSizeMB = 10
	logFileBackups   = 7
)

var (
	defaultMu      sync.RWMutex
	defaultFactory LoggerForModuleFunc = getNullLogger
	moduleLoggers  sync.Map
)

func defaultLoggerForModule(module string) Logger {
	if l, ok := moduleLoggers.Load(module); ok {
		return l.(Logger)
	}

	defaultMu.RLock()
	f := defaultFactory
	defaultMu.RUnlock()

	l := f(module)
	actual, _ := moduleLoggers.LoadOrStore(module, l)

	return actual.(Logger)
}

// SetDefault installs a process-wide logger factory used by Module() when the
// context does not carry one.
func SetDefault(f LoggerForModuleFunc) {
	if f == nil {
		f = getNullLogger
	}

	defaultMu.Lock()
	defaultFactory = f
	moduleLoggers = sync.Map{}
	defaultMu.Unlock()
}

// Setup configures the process-wide zap logger writing to the console and to
// a rotating file under logDir. Empty logDir disables the file sink.
func Setup(level string, logDir string) LoggerForModuleFunc {
	var zapLevel zapcore.Level

	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	consoleEnc := zap.NewDevelopmentEncoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEnc), zapcore.Lock(os.Stderr), zapLevel),
	}

	if logDir != "" {
		fileEnc := zap.NewProductionEncoderConfig()
		fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder

		rotating := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "imxup.log"),
			MaxSize:    logFileMaxSizeMB,
			MaxBackups: logFileBackups,
		}

		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), zapcore.AddSync(rotating), zapLevel))
	}

	root := zap.New(zapcore.NewTee(cores...))

	f := func(module string) Logger {
		return root.Named(module).Sugar()
	}

	SetDefault(f)

	return f
}
