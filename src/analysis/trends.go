package analysis

import (
	"fmt"
	"image/color"
	"path/filepath"

	"PopulationAnalysis/src/chart"
	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/processor"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/plot/vg"
)

// GrowthRateColumn 按地区计算的人口增长率列
const GrowthRateColumn = "Population Growth Rate"

var (
	skyBlue    = color.RGBA{R: 135, G: 206, B: 235, A: 255}
	orange     = color.RGBA{R: 255, G: 165, A: 255}
	lightCoral = color.RGBA{R: 240, G: 128, B: 128, A: 255}
	lightGreen = color.RGBA{R: 144, G: 238, B: 144, A: 255}
	green      = color.RGBA{G: 128, A: 255}
	purple     = color.RGBA{R: 128, B: 128, A: 255}
)

// Trends 人口密度、平均人口、自然增长率、劳动力以及总体趋势
func (a *Analyzer) Trends(input, outDir string) ([]string, error) {
	df, err := a.load(input)
	if err != nil {
		return nil, err
	}
	return a.runSteps(df, outDir, []step{
		{"人口密度", a.populationDensity},
		{"平均人口", a.averagePopulation},
		{"各地区平均人口", a.populationByRegion},
		{"人口自然增长率", a.naturalGrowth},
		{"劳动力", a.laborForce},
		{"总体趋势", a.overallTrend},
	})
}

func (a *Analyzer) populationDensity(df dataframe.DataFrame, outDir string) ([]string, error) {
	year, region, density := a.col(config.ColYear), a.col(config.ColRegion), a.col(config.ColDensity)
	table, err := processor.Pivot(df, year, region, density, processor.Mean)
	if err != nil {
		return nil, err
	}

	grouped := filepath.Join(outDir, "population_density_group_bar_chart.png")
	err = chart.GroupedBar(grouped, table.Rows, tableSeries(table), chart.Options{
		Title:       "Vietnam's population density",
		XLabel:      "Years",
		YLabel:      "population density (people/km²)",
		Width:       12 * vg.Inch,
		LegendTitle: "Region",
	})
	if err != nil {
		return nil, err
	}

	files, err := perColumnBars(table, outDir, "population_density", func(r string) chart.Options {
		return chart.Options{
			Title:  fmt.Sprintf("Vietnam's population density %s", r),
			XLabel: "Years",
			YLabel: "population density (people/km²)",
			Color:  skyBlue,
		}
	})
	return append([]string{grouped}, files...), err
}

func (a *Analyzer) averagePopulation(df dataframe.DataFrame, outDir string) ([]string, error) {
	groups, err := processor.GroupAggregate(df, []string{a.col(config.ColYear)}, a.col(config.ColPopulation), processor.Mean)
	if err != nil {
		return nil, err
	}
	labels, values := groupLabels(groups)
	path := filepath.Join(outDir, "average_population.png")
	err = chart.Bar(path, labels, values, chart.Options{
		Title:  "Vietnam's average population",
		XLabel: "Years",
		YLabel: "average population (thousand people)",
		Color:  skyBlue,
	})
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func (a *Analyzer) populationByRegion(df dataframe.DataFrame, outDir string) ([]string, error) {
	table, err := processor.Pivot(df, a.col(config.ColYear), a.col(config.ColRegion), a.col(config.ColPopulation), processor.Mean)
	if err != nil {
		return nil, err
	}
	return perColumnBars(table, outDir, "average_population", func(r string) chart.Options {
		return chart.Options{
			Title:  fmt.Sprintf("Average population at %s", r),
			XLabel: "Years",
			YLabel: "average population (thousand people)",
			Color:  orange,
		}
	})
}

// NaturalGrowth 各地区人口密度的逐年百分比变化，以及按年份的平均值
func (a *Analyzer) NaturalGrowth(df dataframe.DataFrame) (byYear []processor.Group, byRegion *processor.Table, err error) {
	year, region := a.col(config.ColYear), a.col(config.ColRegion)
	rated, err := processor.GrowthRate(df, year, region, a.col(config.ColDensity), GrowthRateColumn)
	if err != nil {
		return nil, nil, err
	}
	byYear, err = processor.GroupAggregate(rated, []string{year}, GrowthRateColumn, processor.Mean)
	if err != nil {
		return nil, nil, err
	}
	byRegion, err = processor.Pivot(rated, year, region, GrowthRateColumn, processor.Mean)
	if err != nil {
		return nil, nil, err
	}
	return byYear, byRegion, nil
}

func (a *Analyzer) naturalGrowth(df dataframe.DataFrame, outDir string) ([]string, error) {
	if err := processor.RequireColumns(df, a.cols(config.ColYear, config.ColDensity, config.ColRegion)...); err != nil {
		return nil, err
	}
	byYear, byRegion, err := a.NaturalGrowth(df)
	if err != nil {
		return nil, err
	}

	labels, values := groupLabels(byYear)
	path := filepath.Join(outDir, "natural_population_growth_rate_by_year.png")
	err = chart.Bar(path, labels, values, chart.Options{
		Title:  "Vietnam's natural population growth rate",
		XLabel: "Years",
		YLabel: "population growth rate (%)",
		Color:  lightCoral,
	})
	if err != nil {
		return nil, err
	}

	files, err := perColumnBars(byRegion, outDir, "natural_population_growth_rate", func(r string) chart.Options {
		return chart.Options{
			Title:  fmt.Sprintf("Natural population growth rate at %s", r),
			XLabel: "Years",
			YLabel: "population growth rate (%)",
			Color:  lightGreen,
		}
	})
	return append([]string{path}, files...), err
}

// LaborExtremes 每年劳动力最多和最少的地区
func (a *Analyzer) LaborExtremes(df dataframe.DataFrame) ([]processor.Extreme, *processor.Table, error) {
	table, err := processor.Pivot(df, a.col(config.ColYear), a.col(config.ColRegion), a.col(config.ColLabor), processor.Mean)
	if err != nil {
		return nil, nil, err
	}
	return processor.Extremes(table), table, nil
}

func (a *Analyzer) laborForce(df dataframe.DataFrame, outDir string) ([]string, error) {
	extremes, table, err := a.LaborExtremes(df)
	if err != nil {
		return nil, err
	}

	series := tableSeries(table)
	grouped := filepath.Join(outDir, "labor_force_group_bar_chart.png")
	err = chart.GroupedBar(grouped, table.Rows, series, chart.Options{
		Title:       "Labor force aged 15 and over by region",
		XLabel:      "Years",
		YLabel:      "Workforce 15+ (thousand people)",
		Width:       12 * vg.Inch,
		LegendTitle: "region",
	})
	if err != nil {
		return nil, err
	}

	line := filepath.Join(outDir, "labor_force_line_chart.png")
	err = chart.Lines(line, table.Rows, series, chart.Options{
		Title:       "Labor force aged 15 and over over the years by region",
		XLabel:      "Years",
		YLabel:      "Workforce 15+ (thousand people)",
		Width:       12 * vg.Inch,
		LegendTitle: "region",
	})
	if err != nil {
		return []string{grouped}, err
	}

	for _, e := range extremes {
		if !finite(e.MaxValue) {
			a.Logger.Warningf("%s年没有劳动力数据", e.Row)
			continue
		}
		a.Logger.Infof("%s年: 劳动力最多的地区 %s (%.1f 千人)，最少的地区 %s (%.1f 千人)",
			e.Row, e.MaxCol, e.MaxValue, e.MinCol, e.MinValue)
	}
	return []string{grouped, line}, nil
}

// overallTrend 各年 Population grow ratio 之和
func (a *Analyzer) overallTrend(df dataframe.DataFrame, outDir string) ([]string, error) {
	groups, err := processor.GroupAggregate(df, []string{a.col(config.ColYear)}, a.col(config.ColGrowth), processor.Sum)
	if err != nil {
		return nil, err
	}
	labels, values := groupLabels(groups)
	path := filepath.Join(outDir, "trend_population.png")
	err = chart.Lines(path, labels, []chart.Series{{Values: values}}, chart.Options{
		Title:  "Vietnam population trend",
		XLabel: "Year",
		YLabel: "Total population grow ratio",
	})
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}
