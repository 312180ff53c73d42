package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]log.Lvl{
		"debug":   log.DEBUG,
		"INFO":    log.INFO,
		"warning": log.WARN,
		"error":   log.ERROR,
		"off":     log.OFF,
		"bogus":   log.INFO,
	}

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ParseLevel(in))
		})
	}
}

func TestLevelAppliesToExistingLoggers(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	defer SetLevel("info")

	l := New("test")
	SetLevel("error")
	l.Info("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	l.Error("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "[test]")
}
