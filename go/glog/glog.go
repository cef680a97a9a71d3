// Package glog is a thin leveled-logging facade shaped like the teacher
// corpus's sklog package (Infof/Warningf/Errorf/Fatalf, a With() for
// structured fields), backed by a zap logger. A global default logger is
// used unless SetLogger installs a replacement, which tests rely on to
// capture output.
package glog

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	log = mustBuild()
)

func mustBuild() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fall back to a no-op logger rather than crash process start over
		// a logging misconfiguration.
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// SetLogger installs a replacement logger, used by tests to capture
// output instead of writing to stderr.
func SetLogger(l *zap.SugaredLogger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// With returns a logger carrying the given structured key/value pairs on
// every subsequent call, mirroring sklog's contextual-logging convention.
func With(kv ...interface{}) *zap.SugaredLogger {
	return current().With(kv...)
}

func Infof(format string, args ...interface{}) {
	current().Infof(format, args...)
}

func Warningf(format string, args ...interface{}) {
	current().Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	current().Errorf(format, args...)
}

// Fatalf logs at error level and exits the process, matching sklog's
// Fatalf contract. Tests should avoid triggering this path.
func Fatalf(format string, args ...interface{}) {
	current().Errorf(format, args...)
	os.Exit(1)
}
