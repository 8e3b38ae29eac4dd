package parser

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func parse(t *testing.T, input string) *Result {
	t.Helper()
	res, err := Parse(strings.NewReader(input), Options{HealthMarkers: true})
	require.NoError(t, err)
	return res
}

func TestParser_LogsHealthTransitions(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	input := "01.10.2025 00:00:00 1\n#stop\n01.10.2025 00:01:00 2\n#stop\n#start\n"
	_, err := Parse(strings.NewReader(input), Options{Logger: log, HealthMarkers: true})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "from=healthy to=faulty line=2")
	assert.Contains(t, out, "from=faulty to=healthy line=5")
	// the repeated #stop is not a transition
	assert.Equal(t, 2, strings.Count(out, "Meter health changed"))
}

func TestParser_HealthStateMachine(t *testing.T) {
	t.Parallel()

	res := parse(t, strings.Join([]string{
		"#start",
		"01.01.2025 00:00:00 5.0",
		"#stop",
		"01.01.2025 00:01:00 9.0",
		"#start",
		"01.01.2025 00:02:00 3.0",
	}, "\n"))

	assert.Equal(t, []models.Reading{
		{Timestamp: ts("2025-01-01 00:00:00"), Value: 5.0, Healthy: true},
		{Timestamp: ts("2025-01-01 00:01:00"), Value: 0.0, Healthy: false},
		{Timestamp: ts("2025-01-01 00:02:00"), Value: 3.0, Healthy: true},
	}, res.Readings)
	assert.Equal(t, []string{"2025-01-01 00:00:00"}, res.Diagnostics.FailureTimestamps)
	assert.Equal(t, []string{"2025-01-01 00:02:00"}, res.Diagnostics.RecoveryTimestamps)
	assert.Equal(t, 6, res.Diagnostics.TotalLines)
	assert.Equal(t, 3, res.Diagnostics.ParsedLines)
	assert.Equal(t, 2, res.Diagnostics.HealthyLines)
	assert.Equal(t, 1, res.Diagnostics.FaultyLines)
	assert.Equal(t, 33.33, res.Diagnostics.FaultyPercentage)
}

func TestParser_NoMarkersIsHealthy(t *testing.T) {
	t.Parallel()

	res := parse(t, "01.10.2025 00:00:00 1.5\n01.10.2025 00:01:00 2.5\n01.10.2025 00:02:00 0\n")

	require.Len(t, res.Readings, 3)
	for _, r := range res.Readings {
		assert.True(t, r.Healthy)
	}
	assert.Equal(t, 2.5, res.Readings[1].Value)
	assert.Empty(t, res.Diagnostics.FailureTimestamps)
	assert.Empty(t, res.Diagnostics.RecoveryTimestamps)
	assert.Zero(t, res.Diagnostics.FaultyPercentage)
}

func TestParser_CorruptedLinesAreCounted(t *testing.T) {
	t.Parallel()

	res := parse(t, strings.Join([]string{
		"01.10.2025 00:00:00 1",
		"01.10.2025 00:01:00 2",
		"garbage",
		"01.10.2025 00:02:00 3",
		"01.10.2025 00:03:00 4",
		"01.10.2025 00:04:00 5",
	}, "\n"))

	assert.Len(t, res.Readings, 5)
	assert.Equal(t, 1, res.Diagnostics.CorruptedLines)
}

func TestParser_LineForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		line      string
		corrupted bool
		value     float64
	}{
		{name: "value", line: "02.10.2025 00:00:00 9006.741", value: 9006.741},
		{name: "missing value", line: "02.10.2025 00:00:00", value: 0},
		{name: "extra fields", line: "02.10.2025 00:00:00 7 kWh", value: 7},
		{name: "tabs", line: "02.10.2025\t00:00:00\t-1.25", value: -1.25},
		{name: "single field", line: "02.10.2025", corrupted: true},
		{name: "bad date", line: "32.10.2025 00:00:00 1", corrupted: true},
		{name: "iso date", line: "2025-10-02 00:00:00 1", corrupted: true},
		{name: "bad value", line: "02.10.2025 00:00:00 abc", corrupted: true},
		{name: "nan value", line: "02.10.2025 00:00:00 NaN", corrupted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := parse(t, tt.line)
			if tt.corrupted {
				assert.Empty(t, res.Readings)
				assert.Equal(t, 1, res.Diagnostics.CorruptedLines)
				return
			}
			require.Len(t, res.Readings, 1)
			assert.Equal(t, tt.value, res.Readings[0].Value)
			assert.Zero(t, res.Diagnostics.CorruptedLines)
		})
	}
}

func TestParser_CommentsAndBlankLines(t *testing.T) {
	t.Parallel()

	res := parse(t, "# exported by logger\n\n01.10.2025 00:00:00 1\n   \n#note\n01.10.2025 00:01:00 2\n")

	assert.Len(t, res.Readings, 2)
	assert.Equal(t, 2, res.Diagnostics.CommentLines)
	assert.Equal(t, 2, res.Diagnostics.EmptyLines)
	assert.Zero(t, res.Diagnostics.CorruptedLines)
	assert.Equal(t, 6, res.Diagnostics.TotalLines)
}

func TestParser_FaultyValueForcedToZero(t *testing.T) {
	t.Parallel()

	res := parse(t, "#stop\n01.10.2025 00:00:00 123.4\n01.10.2025 00:01:00 55\n")

	require.Len(t, res.Readings, 2)
	for _, r := range res.Readings {
		assert.False(t, r.Healthy)
		assert.Zero(t, r.Value)
	}
	// nothing healthy preceded the stop
	assert.Empty(t, res.Diagnostics.FailureTimestamps)
	assert.Equal(t, 100.0, res.Diagnostics.FaultyPercentage)
}

func TestParser_RepeatedMarkers(t *testing.T) {
	t.Parallel()

	res := parse(t, strings.Join([]string{
		"01.10.2025 00:00:00 1",
		"#stop",
		"#stop",
		"01.10.2025 00:01:00 1",
		"#start",
		"#start",
		"01.10.2025 00:02:00 1",
		"01.10.2025 00:03:00 1",
		"#stop",
		"#start",
		"#stop",
		"01.10.2025 00:04:00 1",
	}, "\n"))

	assert.Equal(t, []bool{true, false, true, true, false}, healthFlags(res.Readings))
	assert.Equal(t, []string{"2025-10-01 00:00:00", "2025-10-01 00:03:00"}, res.Diagnostics.FailureTimestamps)
	assert.Equal(t, []string{"2025-10-01 00:02:00"}, res.Diagnostics.RecoveryTimestamps)
}

func TestParser_MarkersDisabled(t *testing.T) {
	t.Parallel()

	res, err := Parse(strings.NewReader("#stop\n01.10.2025 00:00:00 4\n#start\n"), Options{})
	require.NoError(t, err)

	require.Len(t, res.Readings, 1)
	assert.True(t, res.Readings[0].Healthy)
	assert.Equal(t, 4.0, res.Readings[0].Value)
	assert.Zero(t, res.Diagnostics.CommentLines)
	assert.Zero(t, res.Diagnostics.CorruptedLines)
}

func TestParser_OutOfOrderIsCountedNotSorted(t *testing.T) {
	t.Parallel()

	res := parse(t, "01.10.2025 00:05:00 5\n01.10.2025 00:01:00 1\n01.10.2025 00:01:00 1\n01.10.2025 00:06:00 6\n")

	require.Len(t, res.Readings, 4)
	assert.Equal(t, ts("2025-10-01 00:05:00"), res.Readings[0].Timestamp)
	assert.Equal(t, ts("2025-10-01 00:01:00"), res.Readings[1].Timestamp)
	assert.Equal(t, 2, res.Diagnostics.OutOfOrderLines)
}

func TestParser_Encodings(t *testing.T) {
	t.Parallel()

	// 0xB0 is the degree sign in both Latin-1 and Windows-1252.
	latin := []byte("# \xb0C probe\n01.10.2025 00:00:00 1\n")

	t.Run("auto falls back to cp1252", func(t *testing.T) {
		t.Parallel()
		res, err := Parse(strings.NewReader(string(latin)), Options{Encoding: "auto"})
		require.NoError(t, err)
		assert.Equal(t, EncodingWindows, res.Diagnostics.Encoding)
		assert.Len(t, res.Readings, 1)
	})

	t.Run("strict utf-8 rejects", func(t *testing.T) {
		t.Parallel()
		_, err := Parse(strings.NewReader(string(latin)), Options{Encoding: "utf-8"})
		require.ErrorIs(t, err, ErrUndecodable)
	})

	t.Run("latin-1", func(t *testing.T) {
		t.Parallel()
		res, err := Parse(strings.NewReader(string(latin)), Options{Encoding: "ISO-8859-1"})
		require.NoError(t, err)
		assert.Equal(t, EncodingLatin1, res.Diagnostics.Encoding)
		assert.Len(t, res.Readings, 1)
	})

	t.Run("utf-8 with bom", func(t *testing.T) {
		t.Parallel()
		res, err := Parse(strings.NewReader("\xef\xbb\xbf01.10.2025 00:00:00 1\n"), Options{Encoding: "utf8"})
		require.NoError(t, err)
		assert.Len(t, res.Readings, 1)
		assert.Zero(t, res.Diagnostics.CorruptedLines)
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		_, err := Parse(strings.NewReader(""), Options{Encoding: "ebcdic"})
		require.ErrorContains(t, err, "unsupported encoding")
	})
}

func TestParser_ParseFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "X01_01_202510BTUREADINGS11MIN.txt")
	require.NoError(t, os.WriteFile(path, []byte("01.10.2025 00:00:00 1\r\n01.10.2025 00:01:00 2\r\n"), 0o644))

	res, err := ParseFile(path, Options{Device: "J_B_82_10_27", File: filepath.Base(path), Kind: models.KindRate})
	require.NoError(t, err)
	assert.Len(t, res.Readings, 2)
	assert.Equal(t, "J_B_82_10_27", res.Diagnostics.Device)
	assert.Equal(t, models.KindRate, res.Diagnostics.Kind)
	assert.Equal(t, 2.0, res.Readings[1].Value)

	_, err = ParseFile(filepath.Join(dir, "missing.txt"), Options{})
	require.Error(t, err)
}

func healthFlags(rs []models.Reading) []bool {
	out := make([]bool, len(rs))
	for i, r := range rs {
		out[i] = r.Healthy
	}
	return out
}
