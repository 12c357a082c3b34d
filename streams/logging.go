package streams

import "go.uber.org/zap"

// Logger is the minimal surface the streams runtime needs. It is
// satisfied by *zap.SugaredLogger; callers inject one via SetLogger.
type Logger interface {
	Debugf(template string, args ...any)
	Infof(template string, args ...any)
	Warnf(template string, args ...any)
	Errorf(template string, args ...any)
	Fatalf(template string, args ...any)
}

var log Logger = zap.NewNop().Sugar()

// SetLogger replaces the package-level logger used by the streams
// runtime. Call this once during process start-up, before any
// EventSource is run.
func SetLogger(l Logger) {
	if l != nil {
		log = l
	}
}
