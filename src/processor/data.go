// data.go
package processor

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"PopulationAnalysis/src/utils"

	"github.com/go-gota/gota/dataframe"
)

// MissingColumnsError 缺少必需列
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("缺少以下列: [%s]", strings.Join(e.Columns, ", "))
}

// RequireColumns 检查DataFrame是否包含所有列，缺失的列一次性报告
func RequireColumns(df dataframe.DataFrame, cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !utils.HasColumn(df, c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Columns: missing}
	}
	return nil
}

// Floats 取出数值列，无法解析的值为NaN
func Floats(df dataframe.DataFrame, col string) ([]float64, error) {
	if err := RequireColumns(df, col); err != nil {
		return nil, err
	}
	return df.Col(col).Float(), nil
}

// Strings 取出列的字符串形式
func Strings(df dataframe.DataFrame, col string) ([]string, error) {
	if err := RequireColumns(df, col); err != nil {
		return nil, err
	}
	return df.Col(col).Records(), nil
}

// Unique 按首次出现顺序返回列的不同取值
func Unique(df dataframe.DataFrame, col string) ([]string, error) {
	values, err := Strings(df, col)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

// compareKeys 数值优先的比较，两边都能解析为数字时按数值比较
func compareKeys(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

// sortKeys 对分组键排序
func sortKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool { return compareKeys(keys[i], keys[j]) < 0 })
}

// FormatKey 将年份等数值键格式化为整数形式，例如 "2011.000000" -> "2011"
func FormatKey(key string) string {
	f, err := strconv.ParseFloat(key, 64)
	if err != nil || math.IsNaN(f) || f != math.Trunc(f) {
		return key
	}
	return strconv.FormatInt(int64(f), 10)
}
