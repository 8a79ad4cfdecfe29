// Package feast 基于官方 Feast Go SDK 实现 core.EmbeddingService：
// 按视频 ID 从在线特征库取回预计算的视觉 embedding（mean_rgb），
// 让推理调用方无需自带序列化样本。
package feast

import (
	"context"
	"fmt"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	feasttypes "github.com/feast-dev/feast/sdk/go/protos/feast/types"

	"github.com/rushteam/vtag/core"
)

// EmbeddingSource 实现 core.EmbeddingService。
//
// 特征库约定：
//   - 实体键：entityKey（如 "video_id"）
//   - 特征引用：featureRef（如 "video_features:mean_rgb"），值为 float 列表
type EmbeddingSource struct {
	client     *feastsdk.GrpcClient
	project    string
	entityKey  string
	featureRef string
	dim        int
}

// NewEmbeddingSource 创建 Feast embedding 源。
//
// 参数：
//   - host/port: Feast Feature Server 地址（gRPC，默认端口 6565）
//   - project: Feast 项目名
//   - entityKey: 实体键名，例如 "video_id"
//   - featureRef: 特征引用，例如 "video_features:mean_rgb"
//   - dim: 期望的 embedding 维度（返回长度不符视为数据错误）
func NewEmbeddingSource(host string, port int, project, entityKey, featureRef string, dim int) (*EmbeddingSource, error) {
	if port == 0 {
		port = 6565
	}
	client, err := feastsdk.NewGrpcClient(host, port)
	if err != nil {
		return nil, fmt.Errorf("feast: create grpc client: %w", err)
	}
	return &EmbeddingSource{
		client:     client,
		project:    project,
		entityKey:  entityKey,
		featureRef: featureRef,
		dim:        dim,
	}, nil
}

func (s *EmbeddingSource) Name() string { return "feast" }

// GetEmbedding 取回单个视频的 embedding。
func (s *EmbeddingSource) GetEmbedding(ctx context.Context, videoID string) ([]float32, error) {
	embeddings, err := s.BatchGetEmbeddings(ctx, []string{videoID})
	if err != nil {
		return nil, err
	}
	if embeddings[0] == nil {
		return nil, core.NewDomainError(core.ModuleServe, core.ErrorCodeNotFound,
			fmt.Sprintf("feast: embedding not found for video %q", videoID))
	}
	return embeddings[0], nil
}

// BatchGetEmbeddings 批量取回，返回值与 videoIDs 一一对应，取不到的条目为 nil。
func (s *EmbeddingSource) BatchGetEmbeddings(ctx context.Context, videoIDs []string) ([][]float32, error) {
	if len(videoIDs) == 0 {
		return nil, nil
	}
	entityRows := make([]feastsdk.Row, len(videoIDs))
	for i, id := range videoIDs {
		entityRows[i] = feastsdk.Row{s.entityKey: feastsdk.StrVal(id)}
	}
	resp, err := s.client.GetOnlineFeatures(ctx, &feastsdk.OnlineFeaturesRequest{
		Features: []string{s.featureRef},
		Entities: entityRows,
		Project:  s.project,
	})
	if err != nil {
		return nil, fmt.Errorf("feast: get online features: %w", err)
	}
	rows := resp.Rows()
	if len(rows) != len(videoIDs) {
		return nil, fmt.Errorf("feast: response rows %d != requested %d", len(rows), len(videoIDs))
	}
	out := make([][]float32, len(videoIDs))
	for i, row := range rows {
		val, ok := row[s.featureRef]
		if !ok || val == nil {
			continue
		}
		emb := extractFloats(val)
		if emb == nil {
			continue
		}
		if len(emb) != s.dim {
			return nil, fmt.Errorf("feast: video %q embedding has dim %d, want %d",
				videoIDs[i], len(emb), s.dim)
		}
		out[i] = emb
	}
	return out, nil
}

// extractFloats 从 Feast 值类型提取 float 列表（float/double 都接受）。
func extractFloats(val *feasttypes.Value) []float32 {
	if fl := val.GetFloatListVal(); fl != nil {
		out := make([]float32, len(fl.GetVal()))
		copy(out, fl.GetVal())
		return out
	}
	if dl := val.GetDoubleListVal(); dl != nil {
		vals := dl.GetVal()
		out := make([]float32, len(vals))
		for i, v := range vals {
			out[i] = float32(v)
		}
		return out
	}
	return nil
}

// Close 关闭底层连接。
func (s *EmbeddingSource) Close(ctx context.Context) error {
	return s.client.Close()
}

var _ core.EmbeddingService = (*EmbeddingSource)(nil)
