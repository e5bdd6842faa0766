package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger := newLogger()

	formatter, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
}

func TestGetLogger(t *testing.T) {
	t.Run("falls back to global", func(t *testing.T) {
		entry := G(context.Background())
		assert.Equal(t, L.Logger, entry.Logger)
	})

	t.Run("nil context", func(t *testing.T) {
		//nolint:staticcheck
		assert.Equal(t, L, G(nil))
	})

	t.Run("context logger wins", func(t *testing.T) {
		custom := logrus.NewEntry(logrus.New()).WithField("test", "value")
		ctx := WithLogger(context.Background(), custom)
		assert.Equal(t, "value", G(ctx).Data["test"])
	})
}

func TestWithRunAndSection(t *testing.T) {
	ctx := WithRun(context.Background(), "run-1")
	ctx = WithSection(ctx, "pain_points")

	entry := G(ctx)
	assert.Equal(t, "run-1", entry.Data["run_id"])
	assert.Equal(t, "pain_points", entry.Data["section"])
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	setLoggerFormat(l, "json")

	ctx := WithLogger(context.Background(), logrus.NewEntry(l))
	G(ctx).WithField("composite", 78).Info("section scored")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["logLevel"])
	assert.Equal(t, "section scored", entry["message"])
	assert.EqualValues(t, 78, entry["composite"])

	ts, ok := entry["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339Nano, ts)
	assert.NoError(t, err)
}

func TestSetLogLevel(t *testing.T) {
	original := L.Logger.GetLevel()
	defer L.Logger.SetLevel(original)

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	assert.Error(t, SetLogLevel("chatty"))
}
