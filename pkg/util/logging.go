package util

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogger initializes the process logger: console output when
// logDir is empty, otherwise JSON logfiles split by severity, with an
// additional console tee in debug mode.
func DefaultLogger(debugMode bool, logDir string) (*zap.Logger, error) {
	logDir = strings.TrimSpace(logDir)

	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})

	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl < zapcore.ErrorLevel
	})

	consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	stderr := zapcore.Lock(zapcore.AddSync(os.Stderr))
	stdout := zapcore.Lock(zapcore.AddSync(os.Stdout))

	//---------------------------------------------------------------------------
	// no log directory: console only
	//---------------------------------------------------------------------------
	if logDir == "" {
		return zap.New(zapcore.NewTee(
			zapcore.NewCore(consoleEncoder, stderr, highPriority),
			zapcore.NewCore(consoleEncoder, stdout, lowPriority),
		)), nil
	}

	if err := CreateDirectoryIfNotExists(logDir, 0777); err != nil {
		return nil, err
	}

	openLog := func(name string) (zapcore.WriteSyncer, error) {
		path := filepath.Join(logDir, name)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0777)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open log file %s", path)
		}

		return zapcore.Lock(zapcore.AddSync(f)), nil
	}

	errFileLog, err := openLog("errors.log")
	if err != nil {
		return nil, err
	}

	stdFileLog, err := openLog("standard.log")
	if err != nil {
		return nil, err
	}

	jsonEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	cores := []zapcore.Core{
		zapcore.NewCore(jsonEncoder, errFileLog, highPriority),
		zapcore.NewCore(jsonEncoder, stdFileLog, lowPriority),
	}

	if debugMode {
		cores = append(cores,
			zapcore.NewCore(consoleEncoder, stderr, highPriority),
			zapcore.NewCore(consoleEncoder, stdout, lowPriority),
		)
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}
