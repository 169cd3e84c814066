package analysis

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/datasource/file"
	"PopulationAnalysis/src/processor"
	"PopulationAnalysis/src/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cleanedCSV = "Year,Region,Average population,Population density,15+ labor,Sex ratio,Population grow ratio\n" +
	"2014,Red River Delta,20705.2,974,12181.8,96.5,1.30\n" +
	"2014,South East,15790.4,668,9055.6,94.9,2.14\n" +
	"2014,Central Highlands,5607.9,103,3377.1,103.0,1.16\n" +
	"2015,Red River Delta,20925.5,984,12232.3,96.7,1.06\n" +
	"2015,South East,16127.8,683,9244.7,95.1,2.14\n" +
	"2015,Central Highlands,5693.2,104,3411.6,102.9,1.52\n" +
	"2016,Red River Delta,21133.8,994,12258.0,96.8,0.99\n" +
	"2016,South East,16424.3,696,9332.4,95.2,1.84\n" +
	"2016,Central Highlands,5778.0,106,3425.9,102.8,1.49\n"

type recordLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordLogger) add(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+": "+fmt.Sprintf(format, args...))
}

func (l *recordLogger) Infof(format string, args ...any)    { l.add("INFO", format, args...) }
func (l *recordLogger) Warningf(format string, args ...any) { l.add("WARNING", format, args...) }
func (l *recordLogger) Errorf(format string, args ...any)   { l.add("ERROR", format, args...) }

func (l *recordLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func setup(t *testing.T, csv string) (*Analyzer, *recordLogger, string, string) {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "cleaned.csv")
	require.NoError(t, os.WriteFile(input, []byte(csv), 0644))
	logger := &recordLogger{}
	a := New(config.DefaultDataConfig(), logger, processor.ForecastOptions{Horizon: 10, TestSize: 0.2, Seed: 42})
	return a, logger, input, filepath.Join(dir, "out")
}

func names(files []string) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = filepath.Base(f)
	}
	return out
}

func assertFiles(t *testing.T, files []string) {
	t.Helper()
	for _, f := range files {
		assert.FileExists(t, f)
	}
}

func TestTrendsWritesCharts(t *testing.T) {
	a, logger, input, out := setup(t, cleanedCSV)

	files, err := a.Trends(input, out)
	require.NoError(t, err)
	assertFiles(t, files)

	got := names(files)
	for _, want := range []string{
		"population_density_group_bar_chart.png",
		"population_density_South East.png",
		"average_population.png",
		"average_population_Central Highlands.png",
		"natural_population_growth_rate_by_year.png",
		"natural_population_growth_rate_Red River Delta.png",
		"labor_force_group_bar_chart.png",
		"labor_force_line_chart.png",
		"trend_population.png",
	} {
		assert.Contains(t, got, want)
	}
	assert.True(t, logger.contains("2016年: 劳动力最多的地区 Red River Delta"))
}

func TestTrendsContinuesAfterStepFailure(t *testing.T) {
	csv := "Year,Region,Average population\n2015,A,1\n2016,A,2\n"
	a, logger, input, out := setup(t, csv)

	files, err := a.Trends(input, out)
	require.Error(t, err)
	assert.Equal(t, []string{"average_population.png", "average_population_A.png"}, names(files))
	assert.True(t, logger.contains("人口密度分析失败"))
}

func TestLaborExtremesAndNaturalGrowth(t *testing.T) {
	a, _, input, _ := setup(t, cleanedCSV)
	df, err := file.ReadTable(input, file.ReadOptions{})
	require.NoError(t, err)

	extremes, table, err := a.LaborExtremes(df)
	require.NoError(t, err)
	assert.Equal(t, []string{"2014", "2015", "2016"}, table.Rows)
	assert.Equal(t, "Central Highlands", extremes[0].MinCol)
	assert.Equal(t, 3377.1, extremes[0].MinValue)

	byYear, byRegion, err := a.NaturalGrowth(df)
	require.NoError(t, err)
	require.Len(t, byYear, 3)
	assert.True(t, math.IsNaN(byYear[0].Value))
	assert.InDelta(t, (984.0-974)/974*100, byRegion.Value("2015", "Red River Delta"), 1e-9)
}

func TestDemographics(t *testing.T) {
	a, _, input, out := setup(t, cleanedCSV)

	files, err := a.Demographics(input, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"sex_ratio_by_region.png", "population_density_by_year.png"}, names(files))
	assertFiles(t, files)
}

func TestEconomy(t *testing.T) {
	a, _, input, out := setup(t, cleanedCSV)

	files, err := a.Economy(input, out)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"labor_trend.png",
		"labor_vs_growth.png",
		"average_population_by_region.png",
		"density_and_sex_ratio_by_region.png",
		"labor_force_by_region_and_year.png",
		"population_analysis.png",
	}, names(files))
	assertFiles(t, files)
}

func TestEconomyMissingColumnsProducesNothing(t *testing.T) {
	csv := "Year,Region,Average population\n2015,A,1\n"
	a, _, input, out := setup(t, csv)

	files, err := a.Economy(input, out)
	var mce *processor.MissingColumnsError
	require.True(t, errors.As(err, &mce))
	assert.Contains(t, mce.Columns, "Sex ratio")
	assert.Empty(t, files)
	assert.NoDirExists(t, out)
}

func TestCompareEconomicColumns(t *testing.T) {
	csv := "Year,Region,Population grow ratio,gdp\n" +
		"2015,A,1.0,100\n2015,B,2.0,200\n2016,A,1.5,120\n"
	a, logger, input, out := setup(t, csv)

	files, err := a.Compare(input, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"compare_population_years.png", "compare_gdp_years.png"}, names(files))
	assertFiles(t, files)
	assert.True(t, logger.contains("unemployment_rate"))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Gdp", Title("gdp"))
	assert.Equal(t, "Unemployment Rate", Title("unemployment_rate"))
}

func TestPredict(t *testing.T) {
	a, _, input, out := setup(t, cleanedCSV)

	f, files, err := a.Predict(input, out)
	require.NoError(t, err)
	require.Len(t, f.Future, 10)
	assert.Equal(t, 2017.0, f.Future[0].X)
	assert.Len(t, f.Test, 2)
	assert.Equal(t, []string{"population_prediction.png"}, names(files))
	assertFiles(t, files)
}

func TestWorkbook(t *testing.T) {
	a, _, input, out := setup(t, cleanedCSV)
	f, _, err := a.Predict(input, out)
	require.NoError(t, err)

	sheets, err := a.Workbook(input, f)
	require.NoError(t, err)
	require.Len(t, sheets, 3)
	assert.Equal(t, "ByYear", sheets[0].Name)
	assert.Equal(t, []string{"2014", "2015", "2016"}, sheets[0].DF.Col("Year").Records())
	assert.InDelta(t, (974+668+103)/3.0, sheets[0].DF.Col("Population density").Elem(0).Float(), 1e-9)
	assert.Equal(t, "Central Highlands", sheets[1].DF.Col("Region").Elem(0).String())
	assert.Equal(t, 5778.0, sheets[1].DF.Col("Average population max").Elem(0).Float())
	assert.Equal(t, 10, sheets[2].DF.Nrow())

	require.NoError(t, utils.ExportWorkbook(sheets, filepath.Join(out, "summary.xlsx")))
	assert.FileExists(t, filepath.Join(out, "summary.xlsx"))
}
