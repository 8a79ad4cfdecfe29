package train

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/rushteam/vtag/config"
	"github.com/rushteam/vtag/core"
	"github.com/rushteam/vtag/dataset"
	"github.com/rushteam/vtag/model"
	"github.com/rushteam/vtag/schema"
	"github.com/rushteam/vtag/vocab"
)

// Trainer 是训练编排器：装配模型、目标函数与数据管道，
// 执行训练/评估交替循环，按间隔写检查点，结束后导出可部署的 bundle。
//
// schema、类别权重等配置都在构建时显式装配并在进程内只读，
// 不存在任何包级可变状态。
type Trainer struct {
	cfg      *config.Config
	sch      *schema.Schema
	nClass   int
	spec     *schema.Spec
	model    *model.Linear
	obj      *Objective
	optW     *Adam
	optB     *Adam
	registry core.Store
	log      zerolog.Logger

	gradW []float32
	gradB []float32
}

// Option 配置 Trainer。
type Option func(*Trainer)

// WithRegistry 注入模型注册中心，导出时同时发布 bundle。
func WithRegistry(s core.Store) Option {
	return func(t *Trainer) { t.registry = s }
}

// WithLogger 注入日志器（默认静默）。
func WithLogger(log zerolog.Logger) Option {
	return func(t *Trainer) { t.log = log }
}

// WithSchema 替换默认的视频 schema（测试用小词表/小维度）。
func WithSchema(sch *schema.Schema, nClass int) Option {
	return func(t *Trainer) {
		t.sch = sch
		t.nClass = nClass
	}
}

// New 构建 Trainer：编译 schema、加载类别权重（如启用）、初始化模型与优化器。
// 词表问题（缺列、行数不符、全零计数）在任何训练步开始前即失败。
func New(cfg *config.Config, opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{
		cfg: cfg,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.sch == nil {
		t.sch = schema.Video()
		t.nClass = schema.NClass
	}
	spec, err := t.sch.CompileN(t.nClass)
	if err != nil {
		return nil, err
	}
	t.spec = spec
	var weights []float32
	if cfg.WeightedLoss {
		weights, err = vocab.LoadClassWeights(cfg.VocabPath, t.spec.NClass(), cfg.Scale)
		if err != nil {
			return nil, err
		}
	}
	dim := t.spec.Primary().Length
	t.model = model.NewLinear(dim, t.spec.NClass(), cfg.Seed)
	t.obj = &Objective{Weights: weights}
	t.optW = NewAdam(cfg.LearningRate, len(t.model.W))
	t.optB = NewAdam(cfg.LearningRate, len(t.model.B))
	t.gradW = make([]float32, len(t.model.W))
	t.gradB = make([]float32, len(t.model.B))
	return t, nil
}

// Model 返回当前模型（测试/导出使用）。
func (t *Trainer) Model() *model.Linear { return t.model }

// Run 执行完整的训练流程：训练步循环、周期性检查点 + 评估、最终导出。
// 中途停止最多丢失自上一个检查点以来的进度。
func (t *Trainer) Run(ctx context.Context) error {
	pipe, err := dataset.New(t.spec, dataset.Options{
		BatchSize:     t.cfg.BatchSize,
		ShuffleWindow: t.cfg.ShuffleWindow,
		Seed:          t.cfg.Seed,
		Filter:        t.cfg.Filter,
		Strict:        t.cfg.StrictParse,
	})
	if err != nil {
		return err
	}
	stream, err := pipe.Stream(ctx, t.cfg.TrainDataPath, dataset.ModeTrain)
	if err != nil {
		return err
	}
	defer stream.Close()

	cadence := t.cfg.CheckpointCadence()
	t.log.Info().
		Str("model", t.model.Name()).
		Int("steps", t.cfg.TrainSteps).
		Int("batch_size", t.cfg.BatchSize).
		Int("checkpoint_every", cadence).
		Bool("weighted_loss", t.cfg.WeightedLoss).
		Msg("training started")

	for step := 1; step <= t.cfg.TrainSteps; step++ {
		if !stream.Next() {
			if err := stream.Err(); err != nil {
				return err
			}
			return fmt.Errorf("train: stream ended at step %d", step)
		}
		loss, err := t.Step(stream.Batch())
		if err != nil {
			return err
		}
		if t.cfg.LogEvery > 0 && step%t.cfg.LogEvery == 0 {
			t.log.Info().Int("step", step).Float64("loss", loss).
				Int64("skipped", stream.Skipped()).Msg("train")
		}
		if step%cadence == 0 || step == t.cfg.TrainSteps {
			if err := t.checkpoint(step); err != nil {
				return err
			}
			if t.cfg.EvalDataPath != "" {
				res, err := t.Evaluate(ctx)
				if err != nil {
					return err
				}
				t.log.Info().Int("step", step).
					Float64("precision", res.Precision).
					Float64("recall", res.Recall).
					Float64("avg_n_class", res.AverageNClass).
					Float64("hit_at_one", res.HitAtOne).
					Int64("examples", res.Examples).
					Msg("eval")
			}
		}
	}
	return t.Export(ctx)
}

// Step 在单个批次上执行一次梯度更新，返回该批损失。
func (t *Trainer) Step(batch *core.Batch) (float64, error) {
	x := batch.Primary(t.spec.Primary().Name)
	if x == nil {
		return 0, core.NewDomainError(core.ModuleTrain, core.ErrorCodeInvalidInput,
			fmt.Sprintf("train: batch missing primary input %q", t.spec.Primary().Name))
	}
	logits, err := t.model.Logits(x)
	if err != nil {
		return 0, err
	}
	loss := t.obj.Loss(batch.Labels, logits)
	delta := t.obj.Delta(batch.Labels, logits)

	dim := t.model.Dim
	l2 := float32(t.cfg.L2)
	for i := range t.gradW {
		t.gradW[i] = l2 * t.model.W[i]
	}
	for c := range t.gradB {
		t.gradB[c] = 0
	}
	for i, row := range delta {
		xi := x[i]
		for c, d := range row {
			if d == 0 {
				continue
			}
			w := t.gradW[c*dim : (c+1)*dim]
			for dIdx, v := range xi {
				w[dIdx] += d * v
			}
			t.gradB[c] += d
		}
	}
	t.optW.Step(t.model.W, t.gradW)
	t.optB.Step(t.model.B, t.gradB)
	return loss, nil
}

// Evaluate 在评估数据上跑一趟指标：单趟、保留残批，使用权重的时点快照。
func (t *Trainer) Evaluate(ctx context.Context) (*Result, error) {
	snapshot := t.model.Clone()
	pipe, err := dataset.New(t.spec, dataset.Options{
		BatchSize: t.cfg.BatchSize,
		Strict:    t.cfg.StrictParse,
	})
	if err != nil {
		return nil, err
	}
	stream, err := pipe.Stream(ctx, t.cfg.EvalDataPath, dataset.ModeEval)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var metrics Metrics
	primary := t.spec.Primary().Name
	for batches := 0; stream.Next(); batches++ {
		if t.cfg.EvalSteps > 0 && batches >= t.cfg.EvalSteps {
			break
		}
		batch := stream.Batch()
		probs, err := snapshot.Predict(batch.Primary(primary))
		if err != nil {
			return nil, err
		}
		metrics.Update(batch.Labels, probs)
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	res := metrics.Snapshot()
	return &res, nil
}

// checkpoint 写一个原子检查点目录。
func (t *Trainer) checkpoint(step int) error {
	dir := filepath.Join(t.cfg.ModelDir, "checkpoints", fmt.Sprintf("step-%08d", step))
	bundle := &model.Bundle{Model: t.model, Schema: t.sch}
	if err := bundle.Save(dir); err != nil {
		return err
	}
	t.log.Info().Int("step", step).Str("dir", dir).Msg("checkpoint saved")
	return nil
}

// Export 导出冻结模型 bundle；配置了注册中心时同时发布。
func (t *Trainer) Export(ctx context.Context) error {
	bundle := &model.Bundle{Model: t.model.Clone(), Schema: t.sch}
	dir := t.ExportDir()
	if err := bundle.Save(dir); err != nil {
		return err
	}
	t.log.Info().Str("dir", dir).Msg("model exported")
	if t.registry != nil {
		blob, err := bundle.Encode()
		if err != nil {
			return err
		}
		key := RegistryKey(t.cfg.Name)
		if err := t.registry.Set(ctx, key, blob); err != nil {
			return fmt.Errorf("train: publish to registry: %w", err)
		}
		t.log.Info().Str("store", t.registry.Name()).Str("key", key).Msg("model published")
	}
	return nil
}

// ExportDir 返回导出目录。
func (t *Trainer) ExportDir() string {
	return filepath.Join(t.cfg.ModelDir, "export")
}

// RegistryKey 返回模型在注册中心的 key。
func RegistryKey(name string) string {
	return "vtag:model:" + name
}
