// Package logging hands out prefixed gommon loggers that share one level
// and one output.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/labstack/gommon/log"
)

const header = "${time_rfc3339} ${level} [${prefix}]"

var (
	mu      sync.Mutex
	level   = log.INFO
	out     io.Writer = os.Stdout
	loggers []*log.Logger
)

// New returns a logger tagged with prefix.
func New(prefix string) *log.Logger {
	l := log.New(prefix)
	l.SetHeader(header)

	mu.Lock()
	defer mu.Unlock()
	l.SetLevel(level)
	l.SetOutput(out)
	loggers = append(loggers, l)
	return l
}

// SetLevel applies a level name (debug, info, warn, error, off) to every
// logger created so far and all later ones.
func SetLevel(name string) {
	lvl := ParseLevel(name)

	mu.Lock()
	defer mu.Unlock()
	level = lvl
	for _, l := range loggers {
		l.SetLevel(lvl)
	}
}

// SetOutput redirects every logger.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	for _, l := range loggers {
		l.SetOutput(w)
	}
}

// ParseLevel maps a config string to a gommon level. Unknown names fall
// back to info.
func ParseLevel(name string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off", "none":
		return log.OFF
	default:
		return log.INFO
	}
}
