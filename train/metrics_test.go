package train

import (
	"math"
	"testing"
)

func TestMetricsFixture(t *testing.T) {
	var m Metrics
	y := [][]float32{
		{1, 0, 1, 0}, // 预测命中 0，漏掉 2，最高分 0 命中
		{0, 1, 0, 0}, // 预测 1、3 为正：1 命中、3 误报，最高分 3 未命中
	}
	probs := [][]float32{
		{0.9, 0.1, 0.4, 0.2},
		{0.3, 0.6, 0.1, 0.7},
	}
	m.Update(y, probs)
	r := m.Snapshot()

	// tp=2 (0@1, 1@2)  fp=1 (3@2)  fn=1 (2@1)
	if math.Abs(r.Precision-2.0/3) > 1e-9 {
		t.Errorf("Precision = %v, want 2/3", r.Precision)
	}
	if math.Abs(r.Recall-2.0/3) > 1e-9 {
		t.Errorf("Recall = %v, want 2/3", r.Recall)
	}
	// 预测为正总数 3，样本数 2
	if math.Abs(r.AverageNClass-1.5) > 1e-9 {
		t.Errorf("AverageNClass = %v, want 1.5", r.AverageNClass)
	}
	// 样本 1 的 top-1 是类 0（真）；样本 2 的 top-1 是类 3（假）
	if math.Abs(r.HitAtOne-0.5) > 1e-9 {
		t.Errorf("HitAtOne = %v, want 0.5", r.HitAtOne)
	}
	if r.Examples != 2 {
		t.Errorf("Examples = %d, want 2", r.Examples)
	}
}

func TestMetricsEmpty(t *testing.T) {
	var m Metrics
	r := m.Snapshot()
	// 空评估不得产出 NaN
	if r.Precision != 0 || r.Recall != 0 || r.AverageNClass != 0 || r.HitAtOne != 0 {
		t.Errorf("empty metrics = %+v, want zeros", r)
	}
}

func TestMetricsAccumulatesAcrossBatches(t *testing.T) {
	var whole, split Metrics
	y := [][]float32{{1, 0}, {0, 1}}
	probs := [][]float32{{0.8, 0.1}, {0.2, 0.9}}
	whole.Update(y, probs)
	split.Update(y[:1], probs[:1])
	split.Update(y[1:], probs[1:])
	if whole.Snapshot() != split.Snapshot() {
		t.Error("metrics differ when the same examples arrive in different batch splits")
	}
}
