package train

// Metrics 是评估指标累加器，阈值 0.5。
//
// 指标口径与基线保持一致：
//   - Precision/Recall：全局 micro 统计
//   - AverageNClass：每条样本预测为正的类别数均值
//   - HitAtOne：概率最高的类别命中任一真实标签的样本占比
type Metrics struct {
	tp       int64
	fp       int64
	fn       int64
	predPos  int64
	hits     int64
	examples int64
}

const threshold = 0.5

// Update 累加一批预测。
func (m *Metrics) Update(y, probs [][]float32) {
	for i, row := range probs {
		top := 0
		for c, p := range row {
			if p > row[top] {
				top = c
			}
			pos := p >= threshold
			truth := y[i][c] > 0
			switch {
			case pos && truth:
				m.tp++
			case pos && !truth:
				m.fp++
			case !pos && truth:
				m.fn++
			}
			if pos {
				m.predPos++
			}
		}
		if len(row) > 0 && y[i][top] > 0 {
			m.hits++
		}
		m.examples++
	}
}

// Result 是一次评估的汇总结果。
type Result struct {
	Precision     float64
	Recall        float64
	AverageNClass float64
	HitAtOne      float64
	Examples      int64
}

// Snapshot 汇总当前累计值。
func (m *Metrics) Snapshot() Result {
	r := Result{Examples: m.examples}
	if m.tp+m.fp > 0 {
		r.Precision = float64(m.tp) / float64(m.tp+m.fp)
	}
	if m.tp+m.fn > 0 {
		r.Recall = float64(m.tp) / float64(m.tp+m.fn)
	}
	if m.examples > 0 {
		r.AverageNClass = float64(m.predPos) / float64(m.examples)
		r.HitAtOne = float64(m.hits) / float64(m.examples)
	}
	return r
}
