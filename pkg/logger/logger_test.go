package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevelAndFormat(t *testing.T) {
	require.NoError(t, Init("warn", "json"))
	defer func() { log = nil }()

	var buf bytes.Buffer
	SetOutput(&buf)

	Infof("hidden %d", 1)
	assert.Empty(t, buf.String())

	Warnf("frame dropped: %s", "bad json")
	assert.Contains(t, buf.String(), `"msg":"frame dropped: bad json"`)
	assert.Contains(t, buf.String(), `"level":"warning"`)
}

func TestCallsBeforeInitAreNoops(t *testing.T) {
	log = nil
	Debug("x")
	Info("x")
	Warn("x")
	WithFields(map[string]interface{}{"k": "v"}).Info("discarded")
}
