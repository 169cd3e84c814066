package processor

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/montanaflynn/stats"
)

// AggFunc 聚合函数
type AggFunc string

const (
	Mean   AggFunc = "mean"
	Sum    AggFunc = "sum"
	Min    AggFunc = "min"
	Max    AggFunc = "max"
	Median AggFunc = "median"
	Count  AggFunc = "count"
)

// ParseAggFunc 解析聚合函数名称
func ParseAggFunc(name string) (AggFunc, error) {
	switch fn := AggFunc(strings.ToLower(strings.TrimSpace(name))); fn {
	case Mean, Sum, Min, Max, Median, Count:
		return fn, nil
	}
	return "", fmt.Errorf("不支持的聚合函数: %s", name)
}

// Apply 忽略NaN后计算，全部为NaN时返回NaN(count返回0，sum返回0)
func (fn AggFunc) Apply(values []float64) float64 {
	data := make(stats.Float64Data, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			data = append(data, v)
		}
	}

	switch fn {
	case Count:
		return float64(data.Len())
	case Sum:
		if data.Len() == 0 {
			return 0
		}
		s, _ := stats.Sum(data)
		return s
	}
	if data.Len() == 0 {
		return math.NaN()
	}

	var (
		v   float64
		err error
	)
	switch fn {
	case Mean:
		v, err = stats.Mean(data)
	case Min:
		v, err = stats.Min(data)
	case Max:
		v, err = stats.Max(data)
	case Median:
		v, err = stats.Median(data)
	default:
		return math.NaN()
	}
	if err != nil {
		return math.NaN()
	}
	return v
}

// Group 一个分组的聚合结果
type Group struct {
	Keys  []string // 分组键的取值，与keys顺序一致
	Value float64
	Size  int // 组内行数
}

// Key 分组键拼接
func (g Group) Key() string { return strings.Join(g.Keys, "|") }

// GroupAggregate 按keys分组，对column做聚合，结果按键排序
func GroupAggregate(df dataframe.DataFrame, keys []string, column string, fn AggFunc) ([]Group, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("分组键不能为空")
	}
	if err := RequireColumns(df, append(append([]string{}, keys...), column)...); err != nil {
		return nil, err
	}
	if df.Nrow() == 0 {
		return nil, nil
	}

	groups := df.GroupBy(keys...)
	if groups.Err != nil {
		return nil, fmt.Errorf("分组失败: %w", groups.Err)
	}

	var result []Group
	for _, g := range groups.GetGroups() {
		keyVals := make([]string, len(keys))
		for i, k := range keys {
			keyVals[i] = FormatKey(g.Col(k).Elem(0).String())
		}
		result = append(result, Group{
			Keys:  keyVals,
			Value: fn.Apply(g.Col(column).Float()),
			Size:  g.Nrow(),
		})
	}

	sortGroups(result)
	return result, nil
}

func sortGroups(groups []Group) {
	less := func(a, b Group) bool {
		for i := range a.Keys {
			if c := compareKeys(a.Keys[i], b.Keys[i]); c != 0 {
				return c < 0
			}
		}
		return false
	}
	sort.SliceStable(groups, func(i, j int) bool { return less(groups[i], groups[j]) })
}

// GroupsToDataFrame 将分组结果转为DataFrame，值列命名为valueName
func GroupsToDataFrame(groups []Group, keys []string, valueName string) dataframe.DataFrame {
	cols := make([]series.Series, 0, len(keys)+1)
	for i, k := range keys {
		vals := make([]string, len(groups))
		for j, g := range groups {
			vals[j] = g.Keys[i]
		}
		cols = append(cols, series.New(vals, series.String, k))
	}
	values := make([]float64, len(groups))
	for j, g := range groups {
		values[j] = g.Value
	}
	cols = append(cols, series.New(values, series.Float, valueName))
	return dataframe.New(cols...)
}

// Table 透视表，等价于 groupby([row, col]).agg().unstack()
type Table struct {
	RowKey string
	ColKey string
	Rows   []string
	Cols   []string
	Values [][]float64 // Values[i][j] 对应 Rows[i], Cols[j]，缺失为NaN
}

// Column 返回某一列的所有值
func (t *Table) Column(name string) []float64 {
	j := indexOf(t.Cols, name)
	if j < 0 {
		return nil
	}
	out := make([]float64, len(t.Rows))
	for i := range t.Rows {
		out[i] = t.Values[i][j]
	}
	return out
}

// Value 单元格取值
func (t *Table) Value(row, col string) float64 {
	i, j := indexOf(t.Rows, row), indexOf(t.Cols, col)
	if i < 0 || j < 0 {
		return math.NaN()
	}
	return t.Values[i][j]
}

// Pivot 以rowKey为行、colKey为列聚合column
func Pivot(df dataframe.DataFrame, rowKey, colKey, column string, fn AggFunc) (*Table, error) {
	groups, err := GroupAggregate(df, []string{rowKey, colKey}, column, fn)
	if err != nil {
		return nil, err
	}

	t := &Table{RowKey: rowKey, ColKey: colKey}
	rowSeen, colSeen := map[string]bool{}, map[string]bool{}
	for _, g := range groups {
		if !rowSeen[g.Keys[0]] {
			rowSeen[g.Keys[0]] = true
			t.Rows = append(t.Rows, g.Keys[0])
		}
		if !colSeen[g.Keys[1]] {
			colSeen[g.Keys[1]] = true
			t.Cols = append(t.Cols, g.Keys[1])
		}
	}
	sortKeys(t.Rows)
	sortKeys(t.Cols)

	t.Values = make([][]float64, len(t.Rows))
	for i := range t.Values {
		t.Values[i] = make([]float64, len(t.Cols))
		for j := range t.Values[i] {
			t.Values[i][j] = math.NaN()
		}
	}
	for _, g := range groups {
		t.Values[indexOf(t.Rows, g.Keys[0])][indexOf(t.Cols, g.Keys[1])] = g.Value
	}
	return t, nil
}

// Summary 一列的均值/最小/最大
type Summary struct {
	Mean, Min, Max float64
}

// SummaryRow 一个分组的多列统计
type SummaryRow struct {
	Key   string
	Stats map[string]Summary
}

// RegionSummary 按key分组，对每列求mean/min/max
func RegionSummary(df dataframe.DataFrame, key string, columns []string) ([]SummaryRow, error) {
	if err := RequireColumns(df, append([]string{key}, columns...)...); err != nil {
		return nil, err
	}

	var rows []SummaryRow
	index := map[string]int{}
	for _, col := range columns {
		for _, fn := range []AggFunc{Mean, Min, Max} {
			groups, err := GroupAggregate(df, []string{key}, col, fn)
			if err != nil {
				return nil, err
			}
			for _, g := range groups {
				i, ok := index[g.Keys[0]]
				if !ok {
					i = len(rows)
					index[g.Keys[0]] = i
					rows = append(rows, SummaryRow{Key: g.Keys[0], Stats: map[string]Summary{}})
				}
				s := rows[i].Stats[col]
				switch fn {
				case Mean:
					s.Mean = g.Value
				case Min:
					s.Min = g.Value
				case Max:
					s.Max = g.Value
				}
				rows[i].Stats[col] = s
			}
		}
	}
	return rows, nil
}

// GrowthRate 按sortKey排序后，在每个groupKey内计算column相对上一行的百分比变化
// 每组第一行为NaN，上一值为0时与pandas pct_change一致得到±Inf(0到0为NaN)，结果列名为name
func GrowthRate(df dataframe.DataFrame, sortKey, groupKey, column, name string) (dataframe.DataFrame, error) {
	if err := RequireColumns(df, sortKey, groupKey, column); err != nil {
		return df, err
	}

	sorted := df.Arrange(dataframe.Sort(sortKey))
	if sorted.Err != nil {
		return df, fmt.Errorf("排序失败: %w", sorted.Err)
	}

	groups := sorted.Col(groupKey).Records()
	values := sorted.Col(column).Float()
	rates := make([]float64, len(values))
	prev := map[string]float64{}
	for i, g := range groups {
		p, ok := prev[g]
		switch {
		case !ok || math.IsNaN(p) || math.IsNaN(values[i]):
			rates[i] = math.NaN()
		default:
			rates[i] = (values[i] - p) / p * 100
		}
		if !math.IsNaN(values[i]) {
			prev[g] = values[i]
		} else if !ok {
			prev[g] = math.NaN()
		}
	}

	out := sorted.Mutate(series.New(rates, series.Float, name))
	if out.Err != nil {
		return df, out.Err
	}
	return out, nil
}

// Extreme 某一行中最大、最小的列
type Extreme struct {
	Row      string
	MaxCol   string
	MaxValue float64
	MinCol   string
	MinValue float64
}

// Extremes 对透视表每一行求idxmax/idxmin，忽略NaN
func Extremes(t *Table) []Extreme {
	out := make([]Extreme, 0, len(t.Rows))
	for i, row := range t.Rows {
		e := Extreme{Row: row, MaxValue: math.NaN(), MinValue: math.NaN()}
		for j, col := range t.Cols {
			v := t.Values[i][j]
			if math.IsNaN(v) {
				continue
			}
			if math.IsNaN(e.MaxValue) || v > e.MaxValue {
				e.MaxValue, e.MaxCol = v, col
			}
			if math.IsNaN(e.MinValue) || v < e.MinValue {
				e.MinValue, e.MinCol = v, col
			}
		}
		out = append(out, e)
	}
	return out
}
