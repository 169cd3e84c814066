package analysis

import (
	"path/filepath"

	"PopulationAnalysis/src/chart"
	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/processor"
)

// Predict 以年份对平均人口做线性回归，输出预测图并返回预测结果
func (a *Analyzer) Predict(input, outDir string) (*processor.Forecast, []string, error) {
	year, population := a.col(config.ColYear), a.col(config.ColPopulation)
	df, err := a.load(input, config.ColYear, config.ColPopulation)
	if err != nil {
		return nil, nil, err
	}

	f, err := processor.PredictLinear(df, year, population, a.Forecast)
	if err != nil {
		return nil, nil, err
	}
	a.Logger.Infof("线性回归: 截距 %.4f, 斜率 %.4f, R² %.4f, 测试集MSE %.4f", f.Intercept, f.Slope, f.R2, f.MSE)
	for _, p := range f.Future {
		a.Logger.Infof("预测 %.0f 年平均人口: %.1f", p.X, p.Y)
	}

	path := filepath.Join(outDir, "population_prediction.png")
	err = chart.Forecast(path, f, chart.Options{
		Title:  "Population Prediction Using Linear Regression",
		XLabel: year,
		YLabel: population,
	})
	if err != nil {
		return f, nil, err
	}
	return f, []string{path}, nil
}
