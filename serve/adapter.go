// Package serve 提供在线推理入口：与训练共用同一份特征 schema，
// 解析后丢弃标签输出——推理数据不带标签是契约，不是疏漏。
package serve

import (
	"context"
	"fmt"

	"github.com/rushteam/vtag/core"
	"github.com/rushteam/vtag/model"
	"github.com/rushteam/vtag/record"
	"github.com/rushteam/vtag/schema"
)

// Adapter 包装一份冻结模型与解析规格，无状态、可并发调用。
type Adapter struct {
	m   *model.Linear
	dec *record.Decoder
}

// New 从模型与 schema 构建推理适配器。
func New(m *model.Linear, sch *schema.Schema) (*Adapter, error) {
	spec, err := sch.CompileN(m.NClass)
	if err != nil {
		return nil, err
	}
	if spec.Primary().Length != m.Dim {
		return nil, core.NewDomainError(core.ModuleServe, core.ErrorCodeSchema,
			fmt.Sprintf("serve: schema primary dim %d != model dim %d", spec.Primary().Length, m.Dim))
	}
	return &Adapter{m: m, dec: record.NewDecoder(spec)}, nil
}

// Load 从导出目录构建适配器（自包含 bundle，不依赖训练期配置）。
func Load(dir string) (*Adapter, error) {
	bundle, err := model.Load(dir)
	if err != nil {
		return nil, err
	}
	return New(bundle.Model, bundle.Schema)
}

// LoadFromStore 从模型注册中心拉取 bundle 并构建适配器。
func LoadFromStore(ctx context.Context, s core.Store, key string) (*Adapter, error) {
	blob, err := s.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("serve: load model from %s: %w", s.Name(), err)
	}
	bundle, err := model.Decode(blob)
	if err != nil {
		return nil, err
	}
	return New(bundle.Model, bundle.Schema)
}

// NClass 返回类别数。
func (a *Adapter) NClass() int { return a.m.NClass }

// Serve 对一批序列化样本做推理（batch=1 也可），返回逐类概率。
// 样本中带标签字段会被解析后丢弃；不带标签同样成功。
func (a *Adapter) Serve(raws [][]byte) ([][]float32, error) {
	batch, err := a.dec.Decode(raws)
	if err != nil {
		return nil, err
	}
	primary := a.dec.Spec().Primary().Name
	x := batch.Primary(primary)
	if x == nil {
		return nil, core.NewDomainError(core.ModuleServe, core.ErrorCodeParse,
			fmt.Sprintf("serve: input missing primary field %q", primary))
	}
	return a.m.Predict(x)
}

// ServeEmbeddings 直接对 embedding 做推理（特征库取数路径）。
func (a *Adapter) ServeEmbeddings(embeddings [][]float32) ([][]float32, error) {
	return a.m.Predict(embeddings)
}
