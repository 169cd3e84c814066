package analysis

import (
	"path/filepath"

	"PopulationAnalysis/src/chart"
	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/processor"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/plot/vg"
)

// Demographics 各地区性别比的变化和每年的平均人口密度
func (a *Analyzer) Demographics(input, outDir string) ([]string, error) {
	df, err := a.load(input, config.ColYear, config.ColRegion)
	if err != nil {
		return nil, err
	}
	return a.runSteps(df, outDir, []step{
		{"性别比", a.sexRatio},
		{"年度人口密度", a.densityByYear},
	})
}

func (a *Analyzer) sexRatio(df dataframe.DataFrame, outDir string) ([]string, error) {
	table, err := processor.Pivot(df, a.col(config.ColYear), a.col(config.ColRegion), a.col(config.ColSexRatio), processor.Mean)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(outDir, "sex_ratio_by_region.png")
	err = chart.Lines(path, table.Rows, tableSeries(table), chart.Options{
		Title:       "Sex ratio by region",
		XLabel:      "Years",
		YLabel:      "Sex ratio (males per 100 females)",
		Width:       12 * vg.Inch,
		LegendTitle: "Region",
	})
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func (a *Analyzer) densityByYear(df dataframe.DataFrame, outDir string) ([]string, error) {
	groups, err := processor.GroupAggregate(df, []string{a.col(config.ColYear)}, a.col(config.ColDensity), processor.Mean)
	if err != nil {
		return nil, err
	}
	labels, values := groupLabels(groups)
	path := filepath.Join(outDir, "population_density_by_year.png")
	err = chart.Bar(path, labels, values, chart.Options{
		Title:  "Average population density by year",
		XLabel: "Years",
		YLabel: "population density (people/km²)",
		Color:  skyBlue,
	})
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}
