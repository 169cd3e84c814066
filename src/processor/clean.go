package processor

import (
	"fmt"
	"strconv"
	"strings"

	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/datasource/file"

	"github.com/go-gota/gota/dataframe"
)

// CleanReport 清洗结果统计
type CleanReport struct {
	Columns []string       // 清洗后的列名
	Rows    int            // 行数
	Missing map[string]int // 填充前每列的缺失值数量
	Coerced int            // 年份列中被置为缺失的非数值个数
}

// TotalMissing 缺失值总数
func (r CleanReport) TotalMissing() int {
	total := 0
	for _, n := range r.Missing {
		total += n
	}
	return total
}

// CleanData 清洗数据: 去除列名空白、年份列转为数值、前向填充后再后向填充
// df 应以字符串方式读取(file.ReadOptions.Raw)，以便识别缺失值
func CleanData(df dataframe.DataFrame, dcfg *config.DataConfig) (dataframe.DataFrame, CleanReport, error) {
	report := CleanReport{Missing: make(map[string]int)}
	if df.Err != nil {
		return df, report, df.Err
	}

	records := df.Records()
	if len(records) == 0 {
		return df, report, fmt.Errorf("数据为空")
	}

	// 1. 去除列名两端空白
	header := records[0]
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
	}
	report.Columns = header
	report.Rows = len(records) - 1

	missing := make(map[string]bool, len(dcfg.MissingTokens))
	for _, tok := range dcfg.MissingTokens {
		missing[tok] = true
	}
	isMissing := func(v string) bool { return missing[strings.TrimSpace(v)] }

	// 2. 年份列转换为数值，无法转换的置为缺失
	yearIdx := indexOf(header, dcfg.Column(config.ColYear))
	if yearIdx >= 0 {
		for _, row := range records[1:] {
			v := strings.TrimSpace(row[yearIdx])
			if isMissing(v) {
				continue
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				row[yearIdx] = ""
				report.Coerced++
			}
		}
	}

	// 3. 统计缺失值并填充
	for j, name := range header {
		col := make([]string, len(records)-1)
		valid := make([]bool, len(col))
		for i, row := range records[1:] {
			col[i] = row[j]
			valid[i] = !isMissing(row[j])
			if !valid[i] {
				report.Missing[name]++
			}
		}
		fillColumn(col, valid)
		for i, row := range records[1:] {
			row[j] = col[i]
		}
	}

	cleaned := dataframe.LoadRecords(records,
		dataframe.DetectTypes(true),
		dataframe.NaNValues([]string{"NaN"}),
	)
	if cleaned.Err != nil {
		return cleaned, report, fmt.Errorf("重建dataframe失败: %w", cleaned.Err)
	}
	return cleaned, report, nil
}

// fillColumn 前向填充，再后向填充，全部缺失时填NaN
func fillColumn(col []string, valid []bool) {
	last := -1
	for i := range col {
		if valid[i] {
			last = i
		} else if last >= 0 {
			col[i] = col[last]
			valid[i] = true
		}
	}
	next := -1
	for i := len(col) - 1; i >= 0; i-- {
		if valid[i] {
			next = i
		} else if next >= 0 {
			col[i] = col[next]
			valid[i] = true
		} else {
			col[i] = "NaN"
		}
	}
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}

// CleanFile 读取原始文件、清洗并写出csv
func CleanFile(inPath, outPath string, sheetName string, dcfg *config.DataConfig) (CleanReport, error) {
	raw, err := file.ReadRawTable(inPath, sheetName, dcfg.Encoding)
	if err != nil {
		return CleanReport{}, fmt.Errorf("读取原始数据失败: %w", err)
	}

	cleaned, report, err := CleanData(raw, dcfg)
	if err != nil {
		return report, fmt.Errorf("清洗数据失败: %w", err)
	}

	if err := file.WriteCSV(cleaned, outPath); err != nil {
		return report, err
	}
	return report, nil
}
