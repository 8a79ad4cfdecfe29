package train

import "math"

// Adam 优化器（原论文默认超参）。每个参数切片各持有一份一阶/二阶矩。
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	m []float32
	v []float32
	t int
}

// NewAdam 创建优化器，size 是参数切片长度。
func NewAdam(lr float64, size int) *Adam {
	return &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
		m:     make([]float32, size),
		v:     make([]float32, size),
	}
}

// Step 按梯度原地更新参数。
func (a *Adam) Step(params, grad []float32) {
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, g := range grad {
		a.m[i] = float32(a.Beta1)*a.m[i] + float32(1-a.Beta1)*g
		a.v[i] = float32(a.Beta2)*a.v[i] + float32(1-a.Beta2)*g*g
		mHat := float64(a.m[i]) / c1
		vHat := float64(a.v[i]) / c2
		params[i] -= float32(a.LR * mHat / (math.Sqrt(vHat) + a.Eps))
	}
}
