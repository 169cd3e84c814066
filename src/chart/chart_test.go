package chart

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"PopulationAnalysis/src/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var years = []string{"2011", "2012", "2013"}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, "\x89PNG", string(data[:4]))
}

func TestBarCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bar.png")
	err := Bar(path, years, []float64{1, math.NaN(), 3}, Options{Title: "Average population"})
	require.NoError(t, err)
	assertPNG(t, path)
}

func TestGroupedBarAndLines(t *testing.T) {
	dir := t.TempDir()
	series := []Series{
		{Name: "North Central and Central coastal areas", Values: []float64{199, 201, 202}},
		{Name: "South East", Values: []float64{630, 643, math.NaN()}},
	}

	require.NoError(t, GroupedBar(filepath.Join(dir, "grouped.png"), years, series, Options{LegendTitle: "Region"}))
	require.NoError(t, Lines(filepath.Join(dir, "lines.png"), years, series, Options{RotateX: true}))
	assertPNG(t, filepath.Join(dir, "grouped.png"))
	assertPNG(t, filepath.Join(dir, "lines.png"))
}

func TestPanelValidation(t *testing.T) {
	_, err := Panel{Kind: KindBar}.Plot()
	assert.Error(t, err)

	_, err = Panel{Kind: KindLine, Labels: years, Series: []Series{{Values: []float64{1}}}}.Plot()
	assert.Error(t, err)
}

func TestScatterByGroupWithFit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scatter.png")
	groups := []XYGroup{
		{Name: "A", Points: []processor.Point{{X: 1, Y: 2}, {X: 2, Y: 4}}},
		{Name: "B", Points: []processor.Point{{X: 3, Y: 5.5}, {X: 4, Y: math.NaN()}}},
	}
	require.NoError(t, ScatterByGroup(path, groups, true, Options{Title: "labor vs growth"}))
	assertPNG(t, path)

	err := ScatterByGroup(filepath.Join(t.TempDir(), "empty.png"), nil, true, Options{})
	assert.Error(t, err)
}

func TestForecastChart(t *testing.T) {
	f := &processor.Forecast{
		Observed: []processor.Point{{X: 2011, Y: 1}, {X: 2012, Y: 2}, {X: 2013, Y: 3}},
		Test:     []processor.Point{{X: 2012, Y: 2}},
		Future:   []processor.Point{{X: 2014, Y: 4}, {X: 2015, Y: 5}},
	}
	path := filepath.Join(t.TempDir(), "forecast.png")
	require.NoError(t, Forecast(path, f, Options{}))
	assertPNG(t, path)

	assert.Error(t, Forecast(path, nil, Options{}))
}

func TestStackedAndDashboard(t *testing.T) {
	dir := t.TempDir()
	regions := []string{"Red River Delta", "South East"}
	bar := Panel{Kind: KindBar, Labels: regions, Series: []Series{{Values: []float64{950, 650}}}}
	line := Panel{Kind: KindLine, Labels: regions, Series: []Series{{Values: []float64{96.1, 94.9}}}}

	require.NoError(t, Stacked(filepath.Join(dir, "stacked.png"), bar, line, Options{}))
	assertPNG(t, filepath.Join(dir, "stacked.png"))

	panels := []Panel{bar, line, bar, line}
	require.NoError(t, Dashboard(filepath.Join(dir, "dashboard.png"), panels, 2, 2, Options{}))
	assertPNG(t, filepath.Join(dir, "dashboard.png"))

	assert.Error(t, Dashboard(filepath.Join(dir, "bad.png"), panels, 1, 2, Options{}))
}

func TestDashboardFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	regions := []string{"Red River Delta", "South East"}
	bar := Panel{Kind: KindBar, Labels: regions, Series: []Series{{Values: []float64{950, 650}}}}
	line := Panel{Kind: KindLine, Labels: regions, Series: []Series{{Values: []float64{96.1, 94.9}}}}

	path := filepath.Join(dir, "stacked.svg")
	require.NoError(t, Stacked(path, bar, line, Options{}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")

	path = filepath.Join(dir, "dashboard.pdf")
	require.NoError(t, Dashboard(path, []Panel{bar, line}, 1, 2, Options{}))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data[:4]))

	err = Dashboard(filepath.Join(dir, "dashboard.bmp"), []Panel{bar}, 1, 1, Options{})
	assert.ErrorContains(t, err, "不支持的图片格式")
	assert.NoFileExists(t, filepath.Join(dir, "dashboard.bmp"))
}
