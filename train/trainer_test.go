package train

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rushteam/vtag/config"
	"github.com/rushteam/vtag/core"
	"github.com/rushteam/vtag/record"
	"github.com/rushteam/vtag/schema"
	"github.com/rushteam/vtag/serve"
	"github.com/rushteam/vtag/store"
)

const (
	testDim    = 4
	testNClass = 6
)

func testSchema() *schema.Schema {
	return &schema.Schema{
		Fields: []schema.Field{
			{Name: "id", Kind: schema.KindBytes, Optional: true},
			{Name: "emb", Kind: schema.KindFloatFixed, Length: testDim},
			{Name: "labels", Kind: schema.KindInt64Set, Optional: true},
		},
		Primary: "emb",
		Label:   "labels",
	}
}

// writeTrainShard 生成可学习的合成数据：标签 c 的样本在维度 c%dim 上取值 +2。
func writeTrainShard(t *testing.T, path string, n int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	w := record.NewWriter(f)
	for i := 0; i < n; i++ {
		c := i % testNClass
		emb := make([]float32, testDim)
		emb[c%testDim] = 2
		ex := record.Example{
			"id":     {Bytes: [][]byte{[]byte(fmt.Sprintf("vid-%03d", i))}},
			"emb":    {Floats: emb},
			"labels": {Ints: []int64{int64(c)}},
		}
		if err := w.Write(ex.Marshal()); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func writeVocab(t *testing.T, path string, counts []int64) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create vocab: %v", err)
	}
	defer f.Close()
	fmt.Fprintln(f, "Index,TrainVideoCount")
	for i, c := range counts {
		fmt.Fprintf(f, "%d,%d\n", i, c)
	}
}

func testConfig(t *testing.T, dir string) *config.Config {
	cfg := config.Default()
	cfg.Name = "vtag-test"
	cfg.ModelDir = filepath.Join(dir, "model")
	cfg.TrainDataPath = filepath.Join(dir, "train-*.tfrecord")
	cfg.EvalDataPath = filepath.Join(dir, "train-0.tfrecord")
	cfg.VocabPath = filepath.Join(dir, "vocabulary.csv")
	cfg.TrainSteps = 20
	cfg.EvalSteps = 2
	cfg.BatchSize = 8
	cfg.ShuffleWindow = 8
	cfg.LogEvery = 0
	cfg.WeightedLoss = true
	return cfg
}

func setupData(t *testing.T, dir string) {
	writeTrainShard(t, filepath.Join(dir, "train-0.tfrecord"), 48)
	counts := make([]int64, testNClass)
	for i := range counts {
		counts[i] = 8
	}
	writeVocab(t, filepath.Join(dir, "vocabulary.csv"), counts)
}

func TestTrainerStepReducesLoss(t *testing.T) {
	dir := t.TempDir()
	setupData(t, dir)
	cfg := testConfig(t, dir)
	cfg.LearningRate = 0.05

	tr, err := New(cfg, WithSchema(testSchema(), testNClass))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 在同一固定批上反复更新，损失必须单调可观地下降
	x := make([][]float32, 12)
	y := make([][]float32, 12)
	for i := range x {
		c := i % testNClass
		emb := make([]float32, testDim)
		emb[c%testDim] = 2
		hot := make([]float32, testNClass)
		hot[c] = 1
		x[i], y[i] = emb, hot
	}
	batch := &core.Batch{Features: map[string][][]float32{"emb": x}, Labels: y}

	first, err := tr.Step(batch)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	var last float64
	for i := 0; i < 60; i++ {
		last, err = tr.Step(batch)
		if err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if last >= first*0.8 {
		t.Errorf("loss did not decrease: first %v, last %v", first, last)
	}
}

func TestTrainerRunExportsServableBundle(t *testing.T) {
	dir := t.TempDir()
	setupData(t, dir)
	cfg := testConfig(t, dir)

	registry := store.NewMemoryStore()
	tr, err := New(cfg,
		WithSchema(testSchema(), testNClass),
		WithRegistry(registry),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 导出目录可直接被推理端加载
	adapter, err := serve.Load(tr.ExportDir())
	if err != nil {
		t.Fatalf("serve.Load: %v", err)
	}
	if adapter.NClass() != testNClass {
		t.Errorf("NClass = %d, want %d", adapter.NClass(), testNClass)
	}

	// 注册中心里发布了同一个模型
	fromStore, err := serve.LoadFromStore(context.Background(), registry, RegistryKey(cfg.Name))
	if err != nil {
		t.Fatalf("serve.LoadFromStore: %v", err)
	}
	raw := record.Example{"emb": {Floats: []float32{2, 0, 0, 0}}}.Marshal()
	a, err := adapter.Serve([][]byte{raw})
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	b, err := fromStore.Serve([][]byte{raw})
	if err != nil {
		t.Fatalf("Serve from store: %v", err)
	}
	for c := range a[0] {
		if a[0][c] != b[0][c] {
			t.Fatal("export dir and registry disagree on predictions")
		}
	}

	// 最后一步必定落了检查点
	ckpt := filepath.Join(cfg.ModelDir, "checkpoints", fmt.Sprintf("step-%08d", cfg.TrainSteps))
	if _, err := os.Stat(ckpt); err != nil {
		t.Errorf("final checkpoint missing: %v", err)
	}
}

func TestTrainerEvaluate(t *testing.T) {
	dir := t.TempDir()
	setupData(t, dir)
	cfg := testConfig(t, dir)
	cfg.EvalSteps = 0 // 不限批数，单趟读尽

	tr, err := New(cfg, WithSchema(testSchema(), testNClass))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := tr.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Examples != 48 {
		t.Errorf("Examples = %d, want 48 (single pass keeps remainder)", res.Examples)
	}
}

func TestTrainerVocabFailsBeforeTraining(t *testing.T) {
	dir := t.TempDir()
	writeTrainShard(t, filepath.Join(dir, "train-0.tfrecord"), 8)
	// 词表行数与类别数不符：构建期即失败，不跑任何训练步
	writeVocab(t, filepath.Join(dir, "vocabulary.csv"), []int64{1, 2})
	cfg := testConfig(t, dir)

	_, err := New(cfg, WithSchema(testSchema(), testNClass))
	if !core.IsSchemaError(err) {
		t.Errorf("got %v, want SCHEMA_ERROR", err)
	}
}
