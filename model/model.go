package model

// Predictor 是多标签分类器的最小抽象：输入一批 embedding，输出逐类独立概率。
// 具体实现可以是本地线性模型，也可以是远程推理服务的客户端。
type Predictor interface {
	Name() string
	Predict(x [][]float32) ([][]float32, error)
}
