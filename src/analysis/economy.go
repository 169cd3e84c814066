package analysis

import (
	"math"
	"path/filepath"

	"PopulationAnalysis/src/chart"
	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/processor"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/plot/vg"
)

var economyColumns = []string{
	config.ColYear, config.ColLabor, config.ColGrowth, config.ColRegion,
	config.ColPopulation, config.ColDensity, config.ColSexRatio,
}

// Economy 劳动力、人口增长与地区汇总，缺少任一列时不输出任何图表
func (a *Analyzer) Economy(input, outDir string) ([]string, error) {
	df, err := a.load(input, economyColumns...)
	if err != nil {
		return nil, err
	}
	return a.runSteps(df, outDir, []step{
		{"劳动力趋势", a.laborTrend},
		{"劳动力与人口增长", a.laborVsGrowth},
		{"地区平均人口", a.averagePopulationByRegion},
		{"人口密度与性别比", a.densityAndSexRatio},
		{"地区年度劳动力", a.laborByRegionAndYear},
		{"地区汇总", a.regionDashboard},
	})
}

func (a *Analyzer) laborTrend(df dataframe.DataFrame, outDir string) ([]string, error) {
	groups, err := processor.GroupAggregate(df, []string{a.col(config.ColYear)}, a.col(config.ColLabor), processor.Mean)
	if err != nil {
		return nil, err
	}
	labels, values := groupLabels(groups)
	path := filepath.Join(outDir, "labor_trend.png")
	err = chart.Lines(path, labels, []chart.Series{{Values: values}}, chart.Options{
		Title:  "Labor force trend (15+) by year",
		XLabel: "Year",
		YLabel: "Labor force (15+)",
	})
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func (a *Analyzer) laborVsGrowth(df dataframe.DataFrame, outDir string) ([]string, error) {
	regions, _ := processor.Strings(df, a.col(config.ColRegion))
	xs, _ := processor.Floats(df, a.col(config.ColLabor))
	ys, _ := processor.Floats(df, a.col(config.ColGrowth))

	var groups []chart.XYGroup
	index := map[string]int{}
	for i, r := range regions {
		j, ok := index[r]
		if !ok {
			j = len(groups)
			index[r] = j
			groups = append(groups, chart.XYGroup{Name: r})
		}
		groups[j].Points = append(groups[j].Points, processor.Point{X: xs[i], Y: ys[i]})
	}

	path := filepath.Join(outDir, "labor_vs_growth.png")
	err := chart.ScatterByGroup(path, groups, true, chart.Options{
		Title:  "The relationship between labor force and population growth",
		XLabel: "15+ labor",
		YLabel: "Population grow ratio (%)",
		Width:  15 * vg.Inch,
		Height: 7 * vg.Inch,
	})
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func (a *Analyzer) averagePopulationByRegion(df dataframe.DataFrame, outDir string) ([]string, error) {
	groups, err := processor.GroupAggregate(df, []string{a.col(config.ColRegion)}, a.col(config.ColPopulation), processor.Mean)
	if err != nil {
		return nil, err
	}
	labels, values := groupLabels(groups)
	path := filepath.Join(outDir, "average_population_by_region.png")
	err = chart.Bar(path, labels, values, chart.Options{
		Title:  "Average population by region",
		XLabel: "Region",
		YLabel: "Average population",
		Width:  15 * vg.Inch,
	})
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

// densityAndSexRatio 上方为人口密度柱状图，下方为性别比折线图
func (a *Analyzer) densityAndSexRatio(df dataframe.DataFrame, outDir string) ([]string, error) {
	region := a.col(config.ColRegion)
	density, err := processor.GroupAggregate(df, []string{region}, a.col(config.ColDensity), processor.Mean)
	if err != nil {
		return nil, err
	}
	sexRatio, err := processor.GroupAggregate(df, []string{region}, a.col(config.ColSexRatio), processor.Mean)
	if err != nil {
		return nil, err
	}
	labels, densityValues := groupLabels(density)
	_, ratioValues := groupLabels(sexRatio)

	path := filepath.Join(outDir, "density_and_sex_ratio_by_region.png")
	err = chart.Stacked(path,
		chart.Panel{
			Kind:   chart.KindBar,
			Labels: labels,
			Series: []chart.Series{{Values: densityValues}},
			Options: chart.Options{
				Title:  "Population density and sex ratio by region",
				YLabel: "Population density",
				Color:  skyBlue,
			},
		},
		chart.Panel{
			Kind:   chart.KindLine,
			Labels: labels,
			Series: []chart.Series{{Values: ratioValues}},
			Options: chart.Options{
				XLabel: "Region",
				YLabel: "Sex ratio (%)",
				Color:  orange,
			},
		},
		chart.Options{Width: 12 * vg.Inch, Height: 9 * vg.Inch},
	)
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func (a *Analyzer) laborByRegionAndYear(df dataframe.DataFrame, outDir string) ([]string, error) {
	table, err := processor.Pivot(df, a.col(config.ColRegion), a.col(config.ColYear), a.col(config.ColLabor), processor.Mean)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(outDir, "labor_force_by_region_and_year.png")
	err = chart.GroupedBar(path, table.Rows, tableSeries(table), chart.Options{
		Title:       "Labor Force (15+) by Region and Year",
		XLabel:      "Region",
		YLabel:      "15+ Labor Force",
		Width:       15 * vg.Inch,
		Height:      8 * vg.Inch,
		LegendTitle: "Year",
		RotateX:     true,
	})
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

// RegionSummary 各地区人口密度、劳动力、增长率与人口的均值/最小/最大
func (a *Analyzer) RegionSummary(df dataframe.DataFrame) ([]processor.SummaryRow, error) {
	return processor.RegionSummary(df, a.col(config.ColRegion), a.cols(
		config.ColDensity, config.ColLabor, config.ColGrowth, config.ColPopulation,
	))
}

func (a *Analyzer) regionDashboard(df dataframe.DataFrame, outDir string) ([]string, error) {
	rows, err := a.RegionSummary(df)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(rows))
	for i, r := range rows {
		labels[i] = r.Key
	}
	means := func(key string) []float64 {
		col := a.col(key)
		out := make([]float64, len(rows))
		for i, r := range rows {
			s, ok := r.Stats[col]
			if !ok {
				out[i] = math.NaN()
				continue
			}
			out[i] = s.Mean
		}
		return out
	}
	panel := func(key, title, ylabel string, c chart.Options) chart.Panel {
		c.Title, c.YLabel, c.RotateX = title, ylabel, true
		return chart.Panel{Kind: chart.KindBar, Labels: labels, Series: []chart.Series{{Values: means(key)}}, Options: c}
	}

	path := filepath.Join(outDir, "population_analysis.png")
	err = chart.Dashboard(path, []chart.Panel{
		panel(config.ColDensity, "Average Population Density by Region", "Density (people/km²)", chart.Options{Color: skyBlue}),
		panel(config.ColLabor, "Average Labor Force (15+) by Region", "Labor Force (thousands)", chart.Options{Color: orange}),
		panel(config.ColGrowth, "Average Population Growth Ratio by Region", "Growth Ratio (%)", chart.Options{Color: green}),
		panel(config.ColPopulation, "Average Population by Region", "Population (thousands)", chart.Options{Color: purple}),
	}, 2, 2, chart.Options{Width: 16 * vg.Inch, Height: 12 * vg.Inch})
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}
