package core

import "context"

// EmbeddingService 是视频 embedding 的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（ext/feast 等）实现
//   - 遵循依赖倒置原则：领域层定义接口，基础设施层实现接口
//
// 使用场景：
//   - 按视频 ID 在线取回预计算的视觉 embedding（mean_rgb），
//     让推理调用方无需自带序列化样本即可预测
//
// 实现：
//   - ext/feast.EmbeddingSource 实现此接口（Feast 在线特征库）
type EmbeddingService interface {
	// Name 返回服务名称（用于日志/监控）
	Name() string

	// GetEmbedding 取回单个视频的 embedding
	GetEmbedding(ctx context.Context, videoID string) ([]float32, error)

	// BatchGetEmbeddings 批量取回（推荐使用，减少网络往返）
	// 返回值与 videoIDs 一一对应，取不到的条目为 nil
	BatchGetEmbeddings(ctx context.Context, videoIDs []string) ([][]float32, error)

	// Close 关闭服务，释放资源
	Close(ctx context.Context) error
}
