package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	SetLogLevel(WARN)
	defer SetLogLevel(INFO)

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	SetLogLevel("chatty")

	Debug("debug line")
	Info("info line")

	assert.NotContains(t, buf.String(), "debug line")
	assert.Contains(t, buf.String(), "info line")
}

func TestNamed(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	SetLogLevel(INFO)

	Named("admin").Info("created", "topic", "orders")

	assert.Contains(t, buf.String(), "monkafs.admin")
	assert.Contains(t, buf.String(), "topic=orders")
}

func TestSetOutputReachesExistingLoggers(t *testing.T) {
	SetLogLevel(INFO)
	l := Named("consumer")

	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	l.Info("after redirect")
	assert.Contains(t, buf.String(), "monkafs.consumer")
	assert.Contains(t, buf.String(), "after redirect")
}
