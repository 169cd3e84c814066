package analysis

import (
	"fmt"
	"path/filepath"
	"strings"

	"PopulationAnalysis/src/chart"
	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/processor"
	"PopulationAnalysis/src/utils"

	"github.com/go-gota/gota/dataframe"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Compare 各年份的人口增长率对比，存在经济指标列时逐列输出对比图
func (a *Analyzer) Compare(input, outDir string) ([]string, error) {
	df, err := a.load(input, config.ColYear)
	if err != nil {
		return nil, err
	}

	steps := []step{{"年度人口对比", a.compareGrowth}}
	for _, col := range a.DataConfig.EconomicColumns {
		if !utils.HasColumn(df, col) {
			a.Logger.Infof("数据中没有经济指标列 %s，跳过", col)
			continue
		}
		steps = append(steps, step{
			name: "年度" + col + "对比",
			run: func(df dataframe.DataFrame, outDir string) ([]string, error) {
				return a.compareColumn(df, outDir, col)
			},
		})
	}
	return a.runSteps(df, outDir, steps)
}

func (a *Analyzer) compareGrowth(df dataframe.DataFrame, outDir string) ([]string, error) {
	return a.yearlyLine(df, a.col(config.ColGrowth),
		filepath.Join(outDir, "compare_population_years.png"),
		chart.Options{
			Title:  "Population grow ratio by year",
			XLabel: "Year",
			YLabel: "Population grow ratio",
		})
}

func (a *Analyzer) compareColumn(df dataframe.DataFrame, outDir, col string) ([]string, error) {
	title := Title(col)
	return a.yearlyLine(df, col,
		filepath.Join(outDir, fmt.Sprintf("compare_%s_years.png", col)),
		chart.Options{
			Title:  fmt.Sprintf("%s by year", title),
			XLabel: "Year",
			YLabel: title,
		})
}

// yearlyLine 按年份求均值后画折线
func (a *Analyzer) yearlyLine(df dataframe.DataFrame, col, path string, opts chart.Options) ([]string, error) {
	groups, err := processor.GroupAggregate(df, []string{a.col(config.ColYear)}, col, processor.Mean)
	if err != nil {
		return nil, err
	}
	labels, values := groupLabels(groups)
	if err := chart.Lines(path, labels, []chart.Series{{Values: values}}, opts); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

// Title 列名转为标题，下划线视为空格，例如 unemployment_rate -> Unemployment Rate
func Title(col string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(col, "_", " "))
}
