// Package train 实现带类别权重的 multi-label 训练目标与训练编排。
package train

import (
	"math"

	"github.com/rushteam/vtag/model"
)

// Objective 是加权 multi-label 目标函数：逐类二元交叉熵，可选类别权重。
//
// 归约顺序：先对类别求和，再对批求平均。顺序是契约的一部分——
// 先求和保证每条样本无论带多少正标签都以相同权重进入平均。
type Objective struct {
	// Weights 逐类权重（长度 NClass）；nil 表示不加权
	Weights []float32
}

// Loss 由 logits 计算标量损失。
// 使用 log-sum-exp 安全形式 max(z,0) - z*y + log1p(exp(-|z|))，
// 在 p→0 或 p→1 处保持数值稳定。
func (o *Objective) Loss(y, logits [][]float32) float64 {
	if len(y) == 0 {
		return 0
	}
	var total float64
	for i, row := range logits {
		var perExample float64
		for c, z := range row {
			zf := float64(z)
			bce := math.Max(zf, 0) - zf*float64(y[i][c]) + math.Log1p(math.Exp(-math.Abs(zf)))
			if o.Weights != nil {
				bce *= float64(o.Weights[c])
			}
			perExample += bce
		}
		total += perExample
	}
	return total / float64(len(y))
}

// Delta 计算损失对 logits 的梯度：dL/dz = (p - y) * w / batch。
// sigmoid + BCE 的组合梯度，批平均已并入。
func (o *Objective) Delta(y, logits [][]float32) [][]float32 {
	invBatch := float32(1.0 / float64(len(y)))
	out := make([][]float32, len(logits))
	for i, row := range logits {
		d := make([]float32, len(row))
		for c, z := range row {
			g := (model.Sigmoid(z) - y[i][c]) * invBatch
			if o.Weights != nil {
				g *= o.Weights[c]
			}
			d[c] = g
		}
		out[i] = d
	}
	return out
}
