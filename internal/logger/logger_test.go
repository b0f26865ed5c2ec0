package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgarqa/internal/domain"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "text")
	defer Init("info", "text")

	ctx := WithRun(context.Background())
	ctx = WithIdentity(ctx, domain.Identity{CompanyID: "29669", FiscalYear: 2018, Split: domain.SplitTrain})
	require.NotEmpty(t, RunID(ctx))

	Info(ctx, "indexing filing", "sections", 3)
	Error(ctx, "batch failed", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "msg=\"indexing filing\"")
	assert.Contains(t, out, "company_id=29669")
	assert.Contains(t, out, "fiscal_year=2018")
	assert.Contains(t, out, "split=train")
	assert.Contains(t, out, "run_id="+RunID(ctx))
	assert.Contains(t, out, "error=boom")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "warn", "json")
	defer Init("info", "text")

	Debug(context.Background(), "hidden")
	Warn(context.Background(), "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
