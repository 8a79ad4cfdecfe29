package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/rushteam/vtag/core"
)

// Linear 实现单层线性 + sigmoid 的多标签分类器。
//
// 预测原理：
//  1. 仿射变换: z_c = B_c + sum_d(W_{c,d} * x_d)
//  2. 逐类 sigmoid: p_c = 1 / (1 + exp(-z_c))
//
// 每个类别的概率独立，范围 (0, 1)，不做跨类 softmax 归一化
// （multi-label 任务，类别之间不互斥）。
type Linear struct {
	Dim    int       // 输入维度
	NClass int       // 类别数
	W      []float32 // 权重，按类别行主序展平，长度 NClass*Dim
	B      []float32 // 偏置，长度 NClass
}

// NewLinear 创建模型并以小随机值初始化权重（固定种子保证可复现）。
func NewLinear(dim, nClass int, seed int64) *Linear {
	rng := rand.New(rand.NewSource(seed))
	m := &Linear{
		Dim:    dim,
		NClass: nClass,
		W:      make([]float32, nClass*dim),
		B:      make([]float32, nClass),
	}
	scale := float32(1.0 / math.Sqrt(float64(dim)))
	for i := range m.W {
		m.W[i] = (rng.Float32()*2 - 1) * scale
	}
	return m
}

func (m *Linear) Name() string { return "linear_sigmoid" }

// Logits 计算一批样本的未归一化得分，形状 (batch, NClass)。
// 纯函数：不修改任何模型状态。
func (m *Linear) Logits(x [][]float32) ([][]float32, error) {
	out := make([][]float32, len(x))
	for i, row := range x {
		if len(row) != m.Dim {
			return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidInput,
				fmt.Sprintf("model: input %d has dim %d, want %d", i, len(row), m.Dim))
		}
		z := make([]float32, m.NClass)
		for c := 0; c < m.NClass; c++ {
			w := m.W[c*m.Dim : (c+1)*m.Dim]
			acc := m.B[c]
			for d, v := range row {
				acc += w[d] * v
			}
			z[c] = acc
		}
		out[i] = z
	}
	return out, nil
}

// Predict 返回逐类概率，形状 (batch, NClass)。
func (m *Linear) Predict(x [][]float32) ([][]float32, error) {
	logits, err := m.Logits(x)
	if err != nil {
		return nil, err
	}
	for _, row := range logits {
		for c, z := range row {
			row[c] = Sigmoid(z)
		}
	}
	return logits, nil
}

// Sigmoid 数值稳定的 sigmoid。
func Sigmoid(z float32) float32 {
	if z >= 0 {
		e := float32(math.Exp(-float64(z)))
		return 1 / (1 + e)
	}
	e := float32(math.Exp(float64(z)))
	return e / (1 + e)
}

// Clone 深拷贝模型（评估使用训练权重的时点快照）。
func (m *Linear) Clone() *Linear {
	cp := &Linear{
		Dim:    m.Dim,
		NClass: m.NClass,
		W:      make([]float32, len(m.W)),
		B:      make([]float32, len(m.B)),
	}
	copy(cp.W, m.W)
	copy(cp.B, m.B)
	return cp
}

var _ Predictor = (*Linear)(nil)
