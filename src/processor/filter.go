package processor

import (
	"fmt"
	"sort"
	"strings"

	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/datasource/file"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Filter 过滤条件，一个值为相等比较，多个值为成员比较
type Filter struct {
	Column string
	Values []any
}

func (f Filter) String() string {
	parts := make([]string, len(f.Values))
	for i, v := range f.Values {
		parts[i] = fmt.Sprint(v)
	}
	if len(parts) == 1 {
		return fmt.Sprintf("%s == %s", f.Column, parts[0])
	}
	return fmt.Sprintf("%s in [%s]", f.Column, strings.Join(parts, ", "))
}

// ParseFilters 将配置中的 {"列名": 值 或 [值...]} 转为过滤条件，按列名排序
func ParseFilters(m map[string]any) []Filter {
	cols := make([]string, 0, len(m))
	for c := range m {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	filters := make([]Filter, 0, len(cols))
	for _, c := range cols {
		switch v := m[c].(type) {
		case []any:
			filters = append(filters, Filter{Column: c, Values: v})
		case []string:
			vals := make([]any, len(v))
			for i, s := range v {
				vals[i] = s
			}
			filters = append(filters, Filter{Column: c, Values: vals})
		default:
			filters = append(filters, Filter{Column: c, Values: []any{v}})
		}
	}
	return filters
}

// ParseFilterExpr 解析命令行形式的条件，例如 "Year=2016" 或 "Region=A,B"
func ParseFilterExpr(expr string) (Filter, error) {
	col, raw, ok := strings.Cut(expr, "=")
	col = strings.TrimSpace(col)
	if !ok || col == "" || raw == "" {
		return Filter{}, fmt.Errorf("无效的过滤条件 %q，应为 列名=值[,值]", expr)
	}
	var vals []any
	for _, v := range strings.Split(raw, ",") {
		vals = append(vals, strings.TrimSpace(v))
	}
	return Filter{Column: col, Values: vals}, nil
}

// FilterData 依次应用过滤条件(与关系)
func FilterData(df dataframe.DataFrame, filters ...Filter) (dataframe.DataFrame, error) {
	for _, f := range filters {
		if err := RequireColumns(df, f.Column); err != nil {
			return df, err
		}
		if len(f.Values) == 0 {
			return df, fmt.Errorf("过滤条件 %s 没有值", f.Column)
		}

		cond := dataframe.F{Colname: f.Column, Comparator: series.Eq, Comparando: f.Values[0]}
		if len(f.Values) > 1 {
			cond = dataframe.F{Colname: f.Column, Comparator: series.In, Comparando: f.Values}
		}

		df = df.Filter(cond)
		if df.Err != nil {
			return df, fmt.Errorf("应用过滤条件 %s 失败: %w", f, df.Err)
		}
	}
	return df, nil
}

// FilterFile 读取清洗后的数据，过滤后写出，返回剩余行数
func FilterFile(inPath, outPath string, filters []Filter, dcfg *config.DataConfig) (int, error) {
	df, err := file.ReadTable(inPath, file.ReadOptions{Encoding: dcfg.Encoding})
	if err != nil {
		return 0, fmt.Errorf("读取清洗后的数据失败: %w", err)
	}

	filtered, err := FilterData(df, filters...)
	if err != nil {
		return 0, err
	}

	if err := file.WriteCSV(filtered, outPath); err != nil {
		return 0, err
	}
	return filtered.Nrow(), nil
}
