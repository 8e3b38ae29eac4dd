package influxdb_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/influxdb"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func pointTags(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func pointFields(p *write.Point) map[string]any {
	out := map[string]any{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func testRun() *models.RunSummary {
	return &models.RunSummary{
		ID:    "run-1",
		Month: time.October,
		Year:  2025,
		Blocks: []models.BlockSummary{
			{
				Block:      "82",
				Status:     models.StatusSuccess,
				Meters:     1,
				Files:      2,
				Cumulative: models.BlockCumulativeStatistics{MonthlyConsumption: 30},
				RateMeters: []models.RateStatistics{{Device: "J_B_82_10_27", Totalized: 20}},
				CumulativeMeters: []models.CumulativeStatistics{
					{Device: "J_B_82_10_27", MonthlyConsumption: 30},
				},
				Diagnostics: []models.Diagnostics{
					{Device: "J_B_82_10_27", Kind: models.KindRate, TotalLines: 4, HealthyLines: 4},
					{Device: "J_B_82_10_27", Kind: models.KindCumulative, Error: "permission denied"},
				},
			},
			{Block: "84", Status: models.StatusNoData, Meters: 2},
		},
		District: models.DistrictSummary{Meters: 3, SuccessfulBlocks: 1, NoDataBlocks: 1, MonthlyConsumption: 30},
	}
}

func TestRunPoints(t *testing.T) {
	t.Parallel()

	points := influxdb.RunPoints(testRun())
	// 2 blocks, 1 meter, 2 files, district
	require.Len(t, points, 6)

	byName := map[string][]*write.Point{}
	for _, p := range points {
		assert.Equal(t, time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC), p.Time())
		byName[p.Name()] = append(byName[p.Name()], p)
	}

	blocks := byName[influxdb.MeasurementBlock]
	require.Len(t, blocks, 2)
	// status is a field so a re-run overwrites the block series instead of adding one
	assert.Equal(t, map[string]string{"block": "82"}, pointTags(blocks[0]))
	assert.Equal(t, "success", pointFields(blocks[0])["status"])
	assert.Equal(t, 30.0, pointFields(blocks[0])["monthly_consumption"])
	assert.Equal(t, int64(2), pointFields(blocks[0])["files"])
	assert.Equal(t, map[string]string{"block": "84"}, pointTags(blocks[1]))
	assert.Equal(t, "no_data", pointFields(blocks[1])["status"])

	meters := byName[influxdb.MeasurementMeter]
	require.Len(t, meters, 1)
	assert.Equal(t, map[string]string{"block": "82", "device": "J_B_82_10_27"}, pointTags(meters[0]))
	fields := pointFields(meters[0])
	assert.Equal(t, 20.0, fields["rt_totalized"])
	assert.Equal(t, 30.0, fields["monthly_consumption"])

	files := byName[influxdb.MeasurementFile]
	require.Len(t, files, 2)
	assert.Equal(t, "RT", pointTags(files[0])["kind"])
	assert.Equal(t, false, pointFields(files[0])["unreadable"])
	assert.Equal(t, true, pointFields(files[1])["unreadable"])

	district := byName[influxdb.MeasurementDistrict]
	require.Len(t, district, 1)
	assert.Empty(t, pointTags(district[0]))
	assert.Equal(t, int64(1), pointFields(district[0])["successful_blocks"])
}

type fakeInflux struct {
	mu     sync.Mutex
	status string
	writes []string
	query  []string
}

func (f *fakeInflux) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name":"influxdb","message":"ready for queries and writes","status":"`+f.status+`","checks":[]}`)
	})
	mux.HandleFunc("/api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.writes = append(f.writes, string(body))
		f.query = append(f.query, r.URL.RawQuery)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func TestClient_WriteRun(t *testing.T) {
	t.Parallel()

	fake := &fakeInflux{status: "pass"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client, err := influxdb.NewClient(context.Background(), config.InfluxDBConfig{
		URL:     srv.URL,
		Org:     "district",
		Token:   "token",
		Bucket:  "billing",
		Timeout: 5 * time.Second,
	}, logger)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WriteRun(context.Background(), testRun()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.writes, 1)
	assert.Contains(t, fake.query[0], "bucket=billing")
	assert.Contains(t, fake.query[0], "org=district")

	lines := strings.Split(strings.TrimSpace(fake.writes[0]), "\n")
	assert.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "block_billing,block=82 "))
	assert.Contains(t, lines[0], `status="success"`)
}

func TestNewClient_Unhealthy(t *testing.T) {
	t.Parallel()

	fake := &fakeInflux{status: "fail"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	_, err := influxdb.NewClient(context.Background(), config.InfluxDBConfig{URL: srv.URL, Token: "token"}, logger)
	assert.Error(t, err)
}
