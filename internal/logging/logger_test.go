package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Logger{Level: level, Tag: "test", out: &buf, mu: new(sync.Mutex)}, &buf
}

func TestLogFiltersByLevel(t *testing.T) {
	log, buf := newTestLogger(Warn)
	log.Debug("should not appear")
	assert.Empty(t, buf.String())

	log.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestLogIncludesTagAndMessage(t *testing.T) {
	log, buf := newTestLogger(Debug)
	log.Info("hello %s", "world")
	assert.True(t, strings.Contains(buf.String(), "test"))
	assert.True(t, strings.Contains(buf.String(), "hello world"))
}

func TestWithTagPreservesOutputAndMutex(t *testing.T) {
	log, buf := newTestLogger(Debug)
	tagged := log.WithTag("child")
	tagged.Info("from child")
	assert.Contains(t, buf.String(), "child")
	assert.Same(t, log.mu, tagged.mu)
}
