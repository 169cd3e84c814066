package analysis

import (
	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/processor"
	"PopulationAnalysis/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var summaryColumns = []string{
	config.ColPopulation, config.ColDensity, config.ColLabor, config.ColSexRatio, config.ColGrowth,
}

// Workbook 汇总表: 年度均值、地区统计和预测结果，forecast为nil时不输出预测表
func (a *Analyzer) Workbook(input string, forecast *processor.Forecast) ([]utils.Sheet, error) {
	df, err := a.load(input, config.ColYear, config.ColRegion)
	if err != nil {
		return nil, err
	}

	var present []string
	for _, key := range summaryColumns {
		if utils.HasColumn(df, a.col(key)) {
			present = append(present, a.col(key))
		}
	}

	byYear, err := a.yearlyMeans(df, present)
	if err != nil {
		return nil, err
	}
	byRegion, err := a.regionStats(df, present)
	if err != nil {
		return nil, err
	}

	sheets := []utils.Sheet{{Name: "ByYear", DF: byYear}, {Name: "ByRegion", DF: byRegion}}
	if forecast != nil && len(forecast.Future) > 0 {
		sheets = append(sheets, utils.Sheet{Name: "Forecast", DF: forecastFrame(forecast, a.col(config.ColYear), a.col(config.ColPopulation))})
	}
	return sheets, nil
}

func (a *Analyzer) yearlyMeans(df dataframe.DataFrame, columns []string) (dataframe.DataFrame, error) {
	year := a.col(config.ColYear)
	var cols []series.Series
	for i, c := range columns {
		groups, err := processor.GroupAggregate(df, []string{year}, c, processor.Mean)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		labels, values := groupLabels(groups)
		if i == 0 {
			cols = append(cols, series.New(labels, series.String, year))
		}
		cols = append(cols, series.New(values, series.Float, c))
	}
	if len(cols) == 0 {
		years, err := processor.Unique(df, year)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		cols = append(cols, series.New(years, series.String, year))
	}
	return dataframe.New(cols...), nil
}

func (a *Analyzer) regionStats(df dataframe.DataFrame, columns []string) (dataframe.DataFrame, error) {
	region := a.col(config.ColRegion)
	rows, err := processor.RegionSummary(df, region, columns)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	cols := []series.Series{series.New(keys, series.String, region)}
	for _, c := range columns {
		mean, lo, hi := make([]float64, len(rows)), make([]float64, len(rows)), make([]float64, len(rows))
		for i, r := range rows {
			s := r.Stats[c]
			mean[i], lo[i], hi[i] = s.Mean, s.Min, s.Max
		}
		cols = append(cols,
			series.New(mean, series.Float, c+" mean"),
			series.New(lo, series.Float, c+" min"),
			series.New(hi, series.Float, c+" max"),
		)
	}
	return dataframe.New(cols...), nil
}

func forecastFrame(f *processor.Forecast, xName, yName string) dataframe.DataFrame {
	xs := make([]int, len(f.Future))
	ys := make([]float64, len(f.Future))
	for i, p := range f.Future {
		xs[i], ys[i] = int(p.X), p.Y
	}
	return dataframe.New(
		series.New(xs, series.Int, xName),
		series.New(ys, series.Float, "Predicted "+yName),
	)
}
