package log

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Infof(format string, v ...interface{}) {
	r.lines = append(r.lines, "[INFO] "+fmt.Sprintf(format, v...))
}

func (r *recordingLogger) Debugf(format string, v ...interface{}) {
	r.lines = append(r.lines, "[DEBUG] "+fmt.Sprintf(format, v...))
}

func (r *recordingLogger) Warnf(format string, v ...interface{}) {
	r.lines = append(r.lines, "[WARN] "+fmt.Sprintf(format, v...))
}

func TestSetLogger(t *testing.T) {
	prev := current()
	t.Cleanup(func() { SetLogger(prev) })

	r := &recordingLogger{}
	SetLogger(r)
	Infof("held %s", "abc")
	Debugf("tick %d", 1)
	Warnf("node %s", "down")

	assert.Equal(t, []string{"[INFO] held abc", "[DEBUG] tick 1", "[WARN] node down"}, r.lines)
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	z := NewZapLogger(zap.New(core))

	z.Infof("a %d", 1)
	z.Debugf("b %d", 2)
	z.Warnf("c %d", 3)

	entries := logs.AllUntimed()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, "a 1", entries[0].Message)
		assert.Equal(t, zap.DebugLevel, entries[1].Level)
		assert.Equal(t, zap.WarnLevel, entries[2].Level)
	}
}
