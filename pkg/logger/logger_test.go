package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLoggerFallsBackToGlobal(t *testing.T) {
	entry := GetLogger(context.Background())
	require.NotNil(t, entry)
	assert.Equal(t, L.Logger, entry.Logger)
}

func TestWithLoggerRoundTrip(t *testing.T) {
	base := logrus.NewEntry(logrus.New()).WithField("run_id", "r1")
	ctx := WithLogger(context.Background(), base)

	entry := G(ctx)
	require.NotNil(t, entry)
	assert.Equal(t, "r1", entry.Data["run_id"])
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	require.NoError(t, SetLogLevel("info"))
	assert.Error(t, SetLogLevel("not-a-level"))
}

func TestJSONFormatFieldNames(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	applyFormat(l, "json")

	l.WithField("comment_id", "c1").Info("classified")
	out := buf.String()
	assert.Contains(t, out, `"message":"classified"`)
	assert.Contains(t, out, `"logLevel":"info"`)
	assert.Contains(t, out, `"timestamp"`)
}
