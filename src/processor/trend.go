package processor

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/stat"
)

// ErrNotEnoughData 样本不足以拟合
var ErrNotEnoughData = errors.New("样本数量不足，无法拟合线性模型")

// ForecastOptions 线性预测参数
type ForecastOptions struct {
	Horizon  int     // 向后预测的年数
	TestSize float64 // 测试集比例
	Seed     int64   // 划分训练/测试集的随机种子
}

// Point 二维点
type Point struct {
	X, Y float64
}

// Forecast 线性趋势外推结果
type Forecast struct {
	Intercept float64
	Slope     float64
	MSE       float64 // 测试集均方误差
	R2        float64 // 训练集决定系数
	Observed  []Point // 原始数据
	Test      []Point // 测试集上的预测值，按X排序
	Future    []Point // 未来年份的预测值
}

// Predict 用拟合的直线计算y
func (f *Forecast) Predict(x float64) float64 {
	return f.Intercept + f.Slope*x
}

// FitLinear 最小二乘拟合 y = alpha + beta*x
func FitLinear(x, y []float64) (alpha, beta float64, err error) {
	if len(x) != len(y) {
		return 0, 0, fmt.Errorf("x与y长度不一致: %d != %d", len(x), len(y))
	}
	if len(x) < 2 {
		return 0, 0, ErrNotEnoughData
	}
	if stat.Variance(x, nil) == 0 {
		return 0, 0, fmt.Errorf("x取值全部相同，无法拟合")
	}
	alpha, beta = stat.LinearRegression(x, y, nil, false)
	return alpha, beta, nil
}

// TrainTestSplit 随机划分下标，测试集数量为 ceil(n*testSize)
func TrainTestSplit(n int, testSize float64, seed int64) (train, test []int) {
	nTest := int(math.Ceil(float64(n) * testSize))
	if nTest >= n {
		nTest = n - 1
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest]
}

// PredictLinear 以xCol预测yCol，评估测试集误差并外推Horizon年
func PredictLinear(df dataframe.DataFrame, xCol, yCol string, opts ForecastOptions) (*Forecast, error) {
	xs, err := Floats(df, xCol)
	if err != nil {
		return nil, err
	}
	ys, err := Floats(df, yCol)
	if err != nil {
		return nil, err
	}

	var points []Point
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		points = append(points, Point{X: xs[i], Y: ys[i]})
	}
	if len(points) < 3 {
		return nil, ErrNotEnoughData
	}

	trainIdx, testIdx := TrainTestSplit(len(points), opts.TestSize, opts.Seed)
	trainX, trainY := make([]float64, len(trainIdx)), make([]float64, len(trainIdx))
	for i, idx := range trainIdx {
		trainX[i], trainY[i] = points[idx].X, points[idx].Y
	}

	alpha, beta, err := FitLinear(trainX, trainY)
	if err != nil {
		return nil, err
	}

	f := &Forecast{
		Intercept: alpha,
		Slope:     beta,
		R2:        stat.RSquared(trainX, trainY, nil, alpha, beta),
		Observed:  points,
	}

	var sq float64
	for _, idx := range testIdx {
		p := points[idx]
		pred := f.Predict(p.X)
		sq += (p.Y - pred) * (p.Y - pred)
		f.Test = append(f.Test, Point{X: p.X, Y: pred})
	}
	if len(testIdx) > 0 {
		f.MSE = sq / float64(len(testIdx))
	} else {
		f.MSE = math.NaN()
	}
	sort.Slice(f.Test, func(i, j int) bool { return f.Test[i].X < f.Test[j].X })

	maxX := points[0].X
	for _, p := range points {
		maxX = math.Max(maxX, p.X)
	}
	for k := 1; k <= opts.Horizon; k++ {
		x := maxX + float64(k)
		f.Future = append(f.Future, Point{X: x, Y: f.Predict(x)})
	}
	return f, nil
}
