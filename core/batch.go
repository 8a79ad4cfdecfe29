package core

// Batch 是一批已解码样本的张量视图，批维度在前。
//
// 约定：
//   - Features 按字段名组织，每个字段是 [batch][length] 的定长矩阵
//   - Labels 是 [batch][n_class] 的 multi-hot 编码（0/1，出现即 1，不计数）
//   - IDs 与样本一一对应，仅用于诊断/过滤，可为空串
//
// Batch 是短生命周期对象：由数据管道逐批产出，被模型/目标函数立即消费。
type Batch struct {
	Features map[string][][]float32
	Labels   [][]float32
	IDs      []string
}

// Size 返回批大小。
func (b *Batch) Size() int {
	return len(b.Labels)
}

// Primary 返回主输入字段的矩阵（喂给模型的 embedding）。
// 字段不存在时返回 nil，由调用方决定如何报错。
func (b *Batch) Primary(name string) [][]float32 {
	if b.Features == nil {
		return nil
	}
	return b.Features[name]
}
