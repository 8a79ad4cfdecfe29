// Package service 把推理适配器暴露为 HTTP 服务。
//
// 接口形状与 TensorFlow Serving 的 REST API 对齐，
// 便于直接复用现成的客户端：
//
//	POST /v1/models/{name}:predict
//	请求：{"instances": [{"b64": "<base64 序列化样本>"}, {"video_id": "abc"}]}
//	响应：{"predictions": [[p_0, ..., p_{n_class-1}], ...]}
//
// 两种实例形态可混用：
//   - b64：自带序列化样本（标签字段可有可无，有则解析后丢弃）
//   - video_id：按 ID 从 embedding 服务（如 Feast）在线取回特征
package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/vtag/core"
	"github.com/rushteam/vtag/serve"
)

// Server 是推理 HTTP 服务。
type Server struct {
	name      string
	adapter   *serve.Adapter
	embedding core.EmbeddingService // 可选：按 video_id 取数时需要
	log       zerolog.Logger
}

// Option 配置 Server。
type Option func(*Server)

// WithEmbeddingService 注入按 ID 取 embedding 的服务。
func WithEmbeddingService(svc core.EmbeddingService) Option {
	return func(s *Server) { s.embedding = svc }
}

// WithLogger 注入日志器（默认静默）。
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// NewServer 创建服务。name 用于路由（/v1/models/{name}:predict）。
func NewServer(name string, adapter *serve.Adapter, opts ...Option) *Server {
	s := &Server{
		name:    name,
		adapter: adapter,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler 返回可挂载的 http.Handler。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models/"+s.name+":predict", s.handlePredict)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// ListenAndServe 启动服务。
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.log.Info().Str("addr", addr).Str("model", s.name).Msg("serving started")
	return srv.ListenAndServe()
}

type instance struct {
	B64     string `json:"b64,omitempty"`
	VideoID string `json:"video_id,omitempty"`
}

type predictRequest struct {
	Instances []instance `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float32 `json:"predictions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "only POST is supported")
		return
	}
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("bad request body: %v", err))
		return
	}
	if len(req.Instances) == 0 {
		writeError(w, http.StatusBadRequest, "instances are required")
		return
	}
	preds, err := s.predict(r.Context(), req.Instances)
	if err != nil {
		status := http.StatusInternalServerError
		if core.IsParseError(err) || core.GetDomainError(err) != nil && core.GetDomainError(err).Code == core.ErrorCodeInvalidInput {
			status = http.StatusBadRequest
		}
		s.log.Warn().Err(err).Int("instances", len(req.Instances)).Msg("predict failed")
		writeError(w, status, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(predictResponse{Predictions: preds})
}

// predict 保持输出与 instances 一一对应：分段处理 b64 与 video_id 两种形态。
func (s *Server) predict(ctx context.Context, instances []instance) ([][]float32, error) {
	out := make([][]float32, len(instances))

	var raws [][]byte
	var rawIdx []int
	var ids []string
	var idIdx []int
	for i, ins := range instances {
		switch {
		case ins.B64 != "":
			raw, err := base64.StdEncoding.DecodeString(ins.B64)
			if err != nil {
				return nil, core.NewDomainError(core.ModuleServe, core.ErrorCodeInvalidInput,
					fmt.Sprintf("service: instance %d: bad base64: %v", i, err))
			}
			raws = append(raws, raw)
			rawIdx = append(rawIdx, i)
		case ins.VideoID != "":
			if s.embedding == nil {
				return nil, core.NewDomainError(core.ModuleServe, core.ErrorCodeInvalidInput,
					"service: video_id lookup requires an embedding service")
			}
			ids = append(ids, ins.VideoID)
			idIdx = append(idIdx, i)
		default:
			return nil, core.NewDomainError(core.ModuleServe, core.ErrorCodeInvalidInput,
				fmt.Sprintf("service: instance %d: b64 or video_id is required", i))
		}
	}

	if len(raws) > 0 {
		preds, err := s.adapter.Serve(raws)
		if err != nil {
			return nil, err
		}
		for j, i := range rawIdx {
			out[i] = preds[j]
		}
	}
	if len(ids) > 0 {
		embeddings, err := s.embedding.BatchGetEmbeddings(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("service: fetch embeddings: %w", err)
		}
		for j, emb := range embeddings {
			if emb == nil {
				return nil, core.NewDomainError(core.ModuleServe, core.ErrorCodeNotFound,
					fmt.Sprintf("service: embedding not found for video %q", ids[j]))
			}
		}
		preds, err := s.adapter.ServeEmbeddings(embeddings)
		if err != nil {
			return nil, err
		}
		for j, i := range idIdx {
			out[i] = preds[j]
		}
	}
	return out, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
