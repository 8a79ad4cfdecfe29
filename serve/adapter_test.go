package serve

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rushteam/vtag/core"
	"github.com/rushteam/vtag/model"
	"github.com/rushteam/vtag/record"
	"github.com/rushteam/vtag/schema"
	"github.com/rushteam/vtag/store"
)

func testSchema() *schema.Schema {
	return &schema.Schema{
		Fields: []schema.Field{
			{Name: "id", Kind: schema.KindBytes, Optional: true},
			{Name: "emb", Kind: schema.KindFloatFixed, Length: 4},
			{Name: "labels", Kind: schema.KindInt64Set, Optional: true},
		},
		Primary: "emb",
		Label:   "labels",
	}
}

func testAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(model.NewLinear(4, 6, 777), testSchema())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestServeIgnoresLabels(t *testing.T) {
	a := testAdapter(t)
	emb := []float32{1, -0.5, 2, 0}
	labeled := record.Example{
		"emb":    {Floats: emb},
		"labels": {Ints: []int64{1, 3}},
	}.Marshal()
	unlabeled := record.Example{"emb": {Floats: emb}}.Marshal()

	// 带标签与不带标签的输入必须产出完全一致的预测
	p1, err := a.Serve([][]byte{labeled})
	if err != nil {
		t.Fatalf("Serve labeled: %v", err)
	}
	p2, err := a.Serve([][]byte{unlabeled})
	if err != nil {
		t.Fatalf("Serve unlabeled: %v", err)
	}
	for c := range p1[0] {
		if p1[0][c] != p2[0][c] {
			t.Fatalf("class %d: labeled %v != unlabeled %v", c, p1[0][c], p2[0][c])
		}
	}
	if len(p1[0]) != 6 {
		t.Errorf("got %d classes, want 6", len(p1[0]))
	}
}

func TestServeBatchSizeIndependence(t *testing.T) {
	a := testAdapter(t)
	raws := [][]byte{
		record.Example{"emb": {Floats: []float32{1, 0, 0, 0}}}.Marshal(),
		record.Example{"emb": {Floats: []float32{0, 1, 0, 0}}}.Marshal(),
	}
	batch, err := a.Serve(raws)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	for i, raw := range raws {
		single, err := a.Serve([][]byte{raw})
		if err != nil {
			t.Fatalf("Serve single: %v", err)
		}
		for c := range single[0] {
			if single[0][c] != batch[i][c] {
				t.Fatalf("example %d class %d differs across batch sizes", i, c)
			}
		}
	}
}

func TestServeErrors(t *testing.T) {
	a := testAdapter(t)
	t.Run("missing primary", func(t *testing.T) {
		raw := record.Example{"labels": {Ints: []int64{1}}}.Marshal()
		if _, err := a.Serve([][]byte{raw}); !core.IsParseError(err) {
			t.Errorf("got %v, want PARSE_ERROR", err)
		}
	})
	t.Run("wrong dim", func(t *testing.T) {
		raw := record.Example{"emb": {Floats: []float32{1, 2}}}.Marshal()
		if _, err := a.Serve([][]byte{raw}); !core.IsParseError(err) {
			t.Errorf("got %v, want PARSE_ERROR", err)
		}
	})
	t.Run("label out of range", func(t *testing.T) {
		raw := record.Example{
			"emb":    {Floats: []float32{1, 2, 3, 4}},
			"labels": {Ints: []int64{99}},
		}.Marshal()
		if _, err := a.Serve([][]byte{raw}); !core.IsParseError(err) {
			t.Errorf("got %v, want PARSE_ERROR", err)
		}
	})
}

func TestNewRejectsDimMismatch(t *testing.T) {
	// schema 主输入 4 维、模型 8 维：构建期失败
	if _, err := New(model.NewLinear(8, 6, 777), testSchema()); !core.IsSchemaError(err) {
		t.Errorf("got %v, want SCHEMA_ERROR", err)
	}
}

func TestLoadRoundtrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "export")
	m := model.NewLinear(4, 6, 777)
	bundle := &model.Bundle{Model: m, Schema: testSchema()}
	if err := bundle.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	raw := record.Example{"emb": {Floats: []float32{1, 2, 3, 4}}}.Marshal()
	direct, err := testAdapter(t).Serve([][]byte{raw})
	if err != nil {
		t.Fatalf("Serve direct: %v", err)
	}
	loaded, err := a.Serve([][]byte{raw})
	if err != nil {
		t.Fatalf("Serve loaded: %v", err)
	}
	for c := range direct[0] {
		if direct[0][c] != loaded[0][c] {
			t.Fatal("loaded bundle predicts differently")
		}
	}
}

func TestLoadFromStore(t *testing.T) {
	s := store.NewMemoryStore()
	bundle := &model.Bundle{Model: model.NewLinear(4, 6, 777), Schema: testSchema()}
	blob, err := bundle.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ctx := context.Background()
	if err := s.Set(ctx, "vtag:model:test", blob); err != nil {
		t.Fatalf("Set: %v", err)
	}
	a, err := LoadFromStore(ctx, s, "vtag:model:test")
	if err != nil {
		t.Fatalf("LoadFromStore: %v", err)
	}
	if a.NClass() != 6 {
		t.Errorf("NClass = %d, want 6", a.NClass())
	}
	if _, err := LoadFromStore(ctx, s, "vtag:model:missing"); err == nil {
		t.Error("missing key loaded, want error")
	}
}

func TestServeEmbeddings(t *testing.T) {
	a := testAdapter(t)
	probs, err := a.ServeEmbeddings([][]float32{{1, 0, 0, 0}})
	if err != nil {
		t.Fatalf("ServeEmbeddings: %v", err)
	}
	raw := record.Example{"emb": {Floats: []float32{1, 0, 0, 0}}}.Marshal()
	viaRecord, err := a.Serve([][]byte{raw})
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	for c := range probs[0] {
		if probs[0][c] != viaRecord[0][c] {
			t.Fatal("embedding path and record path disagree")
		}
	}
}
