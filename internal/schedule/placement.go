package schedule

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// Placement 返回某个分桶内的下单位置比例，取值 [0,1]。
// 返回多个比例时该分桶目标量平均拆分到各个时点。
type Placement func(bucketIndex, bucketCount int) []float64

// FixedPlacement 每个分桶使用相同比例。
func FixedPlacement(fractions ...float64) Placement {
	cp := append([]float64(nil), fractions...)
	return func(int, int) []float64 {
		return cp
	}
}

// RandomPlacement 每个分桶在 [0,1) 内随机取一个时点，rng 由调用方持有。
func RandomPlacement(rng *rand.Rand) Placement {
	return func(int, int) []float64 {
		return []float64{rng.Float64()}
	}
}

// Curve 返回分桶的成交量权重，结果会按全部分桶权重之和归一化。
type Curve func(bucketIndex, bucketCount int, bucket Bucket) decimal.Decimal

// UniformCurve 按分桶时长分配，等长分桶得到相同目标量。
func UniformCurve(_ int, _ int, bucket Bucket) decimal.Decimal {
	return decimal.NewFromInt(int64(bucket.Duration / time.Millisecond))
}

// ProfileCurve 在时长权重之上叠加一条按分桶序号取值的成交量曲线，
// 序号超出 profile 长度时循环使用。
func ProfileCurve(profile ...decimal.Decimal) Curve {
	cp := append([]decimal.Decimal(nil), profile...)
	return func(index, count int, bucket Bucket) decimal.Decimal {
		base := UniformCurve(index, count, bucket)
		if len(cp) == 0 {
			return base
		}
		return base.Mul(cp[index%len(cp)])
	}
}
