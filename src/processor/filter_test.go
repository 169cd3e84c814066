package processor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/datasource/file"

	"github.com/go-gota/gota/dataframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cleanCSV = "Year,Region,Average population,Population density,15+ labor,Sex ratio,Population grow ratio\n" +
	"2015,Red River Delta,20925.5,984,12232.3,96.7,1.06\n" +
	"2015,South East,16127.8,683,9244.7,95.1,2.14\n" +
	"2015,Central Highlands,5693.2,104,3411.6,102.9,1.52\n" +
	"2016,Red River Delta,21133.8,994,12258.0,96.8,0.99\n" +
	"2016,South East,16424.3,696,9332.4,95.2,1.84\n" +
	"2016,Central Highlands,5778.0,106,3425.9,102.8,1.49\n"

func loadClean(t *testing.T) dataframe.DataFrame {
	t.Helper()
	df, err := file.ReadCSV(strings.NewReader(cleanCSV), file.ReadOptions{})
	require.NoError(t, err)
	return df
}

func TestParseFilters(t *testing.T) {
	filters := ParseFilters(map[string]any{
		"Year":   float64(2016),
		"Region": []any{"South East", "Central Highlands"},
	})
	require.Len(t, filters, 2)
	assert.Equal(t, "Region", filters[0].Column)
	assert.Equal(t, "Region in [South East, Central Highlands]", filters[0].String())
	assert.Equal(t, "Year == 2016", filters[1].String())
}

func TestParseFilterExpr(t *testing.T) {
	f, err := ParseFilterExpr("Region=South East, Central Highlands")
	require.NoError(t, err)
	assert.Equal(t, "Region", f.Column)
	assert.Equal(t, []any{"South East", "Central Highlands"}, f.Values)

	for _, bad := range []string{"Year", "=2016", "Year="} {
		_, err := ParseFilterExpr(bad)
		assert.Error(t, err, bad)
	}
}

func TestFilterDataEquality(t *testing.T) {
	df := loadClean(t)

	out, err := FilterData(df, Filter{Column: "Year", Values: []any{float64(2016)}})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Nrow())
	assert.Equal(t, []float64{2016, 2016, 2016}, out.Col("Year").Float())
}

func TestFilterDataMembershipAndConjunction(t *testing.T) {
	df := loadClean(t)

	out, err := FilterData(df,
		Filter{Column: "Region", Values: []any{"South East", "Central Highlands"}},
		Filter{Column: "Year", Values: []any{"2015"}},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"South East", "Central Highlands"}, out.Col("Region").Records())
}

func TestFilterDataNoMatchIsEmpty(t *testing.T) {
	out, err := FilterData(loadClean(t), Filter{Column: "Year", Values: []any{2020}})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Nrow())
}

func TestFilterDataUnknownColumn(t *testing.T) {
	_, err := FilterData(loadClean(t), Filter{Column: "Province", Values: []any{"Ha Noi"}})
	var mce *MissingColumnsError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, []string{"Province"}, mce.Columns)
}

func TestFilterFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "cleaned.csv")
	out := filepath.Join(dir, "filtered.csv")
	require.NoError(t, os.WriteFile(in, []byte(cleanCSV), 0644))

	n, err := FilterFile(in, out, ParseFilters(map[string]any{"Year": float64(2015)}), config.DefaultDataConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.FileExists(t, out)
}

func TestFilterFileKeepsFullPrecision(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "cleaned.csv")
	out := filepath.Join(dir, "filtered.csv")
	require.NoError(t, os.WriteFile(in, []byte("Year,V\n2015,0.0000004\n2016,1.23456789\n2016,0.0000004\n"), 0644))

	n, err := FilterFile(in, out, []Filter{{Column: "Year", Values: []any{2016}}}, config.DefaultDataConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Year,V\n2016,1.23456789\n2016,4e-07\n", string(data))
}
