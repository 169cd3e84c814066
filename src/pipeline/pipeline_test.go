package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawCSV = "Year, Region ,Average population,Population density,15+ labor,Sex ratio,Population grow ratio\n" +
	"2014,Red River Delta,20705.2,974,12181.8,96.5,1.30\n" +
	"2014,South East,15790.4,668,9055.6,,2.14\n" +
	"2015,Red River Delta,20925.5,984,12232.3,96.7,1.06\n" +
	"2015,South East,16127.8,683,9244.7,95.1,NA\n" +
	"2016,Red River Delta,21133.8,994,12258.0,96.8,0.99\n" +
	"2016,South East,16424.3,696,9332.4,95.2,1.84\n"

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		RawPath:      filepath.Join(dir, "raw", "population.csv"),
		CleanedPath:  filepath.Join(dir, "cleaned", "cleaned_population.csv"),
		FilteredPath: filepath.Join(dir, "filtered", "filtered_population.csv"),
		OutputDir:    filepath.Join(dir, "outputs", "visualizations"),
		WorkbookPath: filepath.Join(dir, "outputs", "summary.xlsx"),
		Filters:      map[string]any{"Year": float64(2016)},
	}
	cfg.Forecast.Horizon, cfg.Forecast.TestSize, cfg.Forecast.Seed = 10, 0.2, 42
	return cfg
}

func newLogger(t *testing.T, dir string) *storage.Logger {
	t.Helper()
	logger, err := storage.NewLogger(filepath.Join(dir, "logs", "app.log"))
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestRunProducesChartsWorkbookAndNotification(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.RawPath), 0755))
	require.NoError(t, os.WriteFile(cfg.RawPath, []byte(rawCSV), 0644))

	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()
	cfg.Webhook.URL, cfg.Webhook.Keyword = srv.URL, "population"

	report, err := New(cfg, config.DefaultDataConfig(), newLogger(t, dir)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, report.Clean.Rows)
	assert.Equal(t, 2, report.Clean.TotalMissing())
	assert.Equal(t, 2, report.FilteredRows)
	assert.Empty(t, report.Failures)
	assert.Equal(t, cfg.WorkbookPath, report.Workbook)
	assert.FileExists(t, cfg.WorkbookPath)
	assert.FileExists(t, cfg.FilteredPath)
	require.NotNil(t, report.Forecast)
	assert.Len(t, report.Forecast.Future, 10)

	for _, f := range report.Files {
		assert.FileExists(t, f)
	}
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "trends", "trend_population.png"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "economy", "population_analysis.png"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "predict", "population_prediction.png"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], "人口数据分析报告")
	assert.Contains(t, bodies[0], "[population]")
}

func TestRunAbortsWhenCleaningFails(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)

	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()
	cfg.Webhook.URL, cfg.Webhook.Keyword = srv.URL, "population"

	report, err := New(cfg, config.DefaultDataConfig(), newLogger(t, dir)).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "清洗数据失败")
	assert.Empty(t, report.Files)
	assert.NoFileExists(t, cfg.CleanedPath)

	assert.Contains(t, body, `"msgtype":"text"`)
	assert.Contains(t, body, "人口数据分析中止")
	assert.Contains(t, body, "[population]")
}

func TestRunContinuesAfterFilterFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Filters = map[string]any{"Province": "Ha Noi"}
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.RawPath), 0755))
	require.NoError(t, os.WriteFile(cfg.RawPath, []byte(rawCSV), 0644))

	report, err := New(cfg, config.DefaultDataConfig(), newLogger(t, dir)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"过滤数据"}, report.Failures)
	assert.NotEmpty(t, report.Files)
	assert.FileExists(t, cfg.WorkbookPath)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.RawPath), 0755))
	require.NoError(t, os.WriteFile(cfg.RawPath, []byte(rawCSV), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(cfg, config.DefaultDataConfig(), newLogger(t, dir)).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, cfg.CleanedPath)
	assert.NoFileExists(t, cfg.WorkbookPath)
}

func TestReportMarkdown(t *testing.T) {
	r := &Report{FilteredRows: 6, Files: []string{"a.png"}, Failures: []string{"经济影响分析"}}
	md := r.Markdown()
	assert.True(t, strings.HasPrefix(md, "### 人口数据分析报告"))
	assert.Contains(t, md, "过滤后行数: 6")
	assert.Contains(t, md, "失败步骤: 经济影响分析")
}
