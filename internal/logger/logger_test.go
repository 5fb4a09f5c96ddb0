package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInit(t *testing.T) {
	Init()
	assert.NotNil(t, InfoLogger)
	assert.NotNil(t, ErrorLogger)
	assert.NotNil(t, DebugLogger)
}

func capture(target **log.Logger) *bytes.Buffer {
	var buf bytes.Buffer
	*target = log.New(&buf, "", 0)
	return &buf
}

func TestInfo(t *testing.T) {
	buf := capture(&InfoLogger)

	Info("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestInfo_KeyValuePairs(t *testing.T) {
	buf := capture(&InfoLogger)

	Info("settled", "invoice", "ab3x9", "gross", "25.00")

	out := buf.String()
	assert.Contains(t, out, "settled")
	assert.Contains(t, out, "invoice=ab3x9")
	assert.Contains(t, out, "gross=25.00")
}

func TestInfo_DanglingKey(t *testing.T) {
	buf := capture(&InfoLogger)

	Info("partial", "orphan")

	assert.Contains(t, buf.String(), "partial orphan")
}

func TestError(t *testing.T) {
	buf := capture(&ErrorLogger)

	Error("test error", "code", 42)

	out := buf.String()
	assert.Contains(t, out, "test error")
	assert.Contains(t, out, "code=42")
}

func TestDebug(t *testing.T) {
	buf := capture(&DebugLogger)

	Debug("test debug")

	assert.Contains(t, buf.String(), "test debug")
}

func TestInfof(t *testing.T) {
	buf := capture(&InfoLogger)

	Infof("test %s", "message")

	assert.Contains(t, buf.String(), "test message")
}

func TestErrorf(t *testing.T) {
	buf := capture(&ErrorLogger)

	Errorf("test %s", "error")

	assert.Contains(t, buf.String(), "test error")
}

func TestDebugf(t *testing.T) {
	buf := capture(&DebugLogger)

	Debugf("test %s", "debug")

	assert.Contains(t, buf.String(), "test debug")
}
