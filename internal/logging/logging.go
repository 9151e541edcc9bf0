// Package logging owns the process-wide driver logger. The driver is loaded
// into a foreign host process, so the logger is initialized exactly once per
// load and only reconfigured to a more verbose level, never torn down.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/go-pkgz/lgr"
)

// Level precedence, lowest to highest verbosity. Each level includes all
// lower-verbosity levels' messages.
const (
	LevelError = "error"
	LevelWarn  = "warn"
	LevelInfo  = "info"
	LevelDebug = "debug"
	LevelTrace = "trace"
)

var levelRank = map[string]int{
	LevelError: 0,
	LevelWarn:  1,
	LevelInfo:  2,
	LevelDebug: 3,
	LevelTrace: 4,
}

var (
	mu      sync.Mutex
	current = -1
	out     io.Writer = os.Stderr
)

// SetOutput redirects log output, used by tests and by hosts that configure
// a log file. Must be called before Init to take effect.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// Init configures the global lgr logger for the given level name. Repeated
// calls only ever raise verbosity, so two connections with different loglevel
// settings get the more verbose of the two.
func Init(level string) {
	mu.Lock()
	defer mu.Unlock()
	rank, ok := levelRank[strings.ToLower(level)]
	if !ok {
		rank = levelRank[LevelInfo]
	}
	if rank <= current {
		return
	}
	current = rank

	opts := []lgr.Option{lgr.Out(out), lgr.Err(out), lgr.Msec, lgr.LevelBraces}
	if rank >= levelRank[LevelDebug] {
		opts = append(opts, lgr.Debug)
	}
	if rank >= levelRank[LevelTrace] {
		opts = append(opts, lgr.Trace)
	}
	lgr.Setup(opts...)
}

// Rank returns the numeric precedence of a level name, defaulting to info.
func Rank(level string) int {
	if r, ok := levelRank[strings.ToLower(level)]; ok {
		return r
	}
	return levelRank[LevelInfo]
}

// Enabled reports whether messages at the given level are currently emitted.
func Enabled(level string) bool {
	mu.Lock()
	defer mu.Unlock()
	return Rank(level) <= current
}
