package model

import (
	"math"
	"testing"

	"github.com/rushteam/vtag/core"
)

func TestSigmoid(t *testing.T) {
	if got := Sigmoid(0); math.Abs(float64(got)-0.5) > 1e-6 {
		t.Errorf("Sigmoid(0) = %v, want 0.5", got)
	}
	// 大 |z| 处不溢出且落在 (0,1)
	for _, z := range []float32{-100, -10, -1, 1, 10, 100} {
		p := Sigmoid(z)
		if !(p > 0 && p < 1) {
			t.Errorf("Sigmoid(%v) = %v, want in (0,1)", z, p)
		}
		// 对称性：σ(-z) = 1 - σ(z)
		if math.Abs(float64(Sigmoid(-z)+p)-1) > 1e-6 {
			t.Errorf("Sigmoid(%v) + Sigmoid(%v) != 1", z, -z)
		}
	}
}

func TestLinearPredict(t *testing.T) {
	m := NewLinear(4, 3, 777)
	probs, err := m.Predict([][]float32{{1, 0, -1, 0.5}, {0, 0, 0, 0}})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(probs) != 2 || len(probs[0]) != 3 {
		t.Fatalf("probs shape = (%d, %d), want (2, 3)", len(probs), len(probs[0]))
	}
	for i, row := range probs {
		for c, p := range row {
			if !(p > 0 && p < 1) {
				t.Errorf("probs[%d][%d] = %v, want in (0,1)", i, c, p)
			}
		}
	}
	// 零输入时 logit 即偏置（初始为 0），概率为 0.5
	for c, p := range probs[1] {
		if math.Abs(float64(p)-0.5) > 1e-6 {
			t.Errorf("zero input probs[%d] = %v, want 0.5", c, p)
		}
	}
}

func TestLinearDimMismatch(t *testing.T) {
	m := NewLinear(4, 3, 777)
	_, err := m.Predict([][]float32{{1, 2}})
	de := core.GetDomainError(err)
	if de == nil || de.Code != core.ErrorCodeInvalidInput {
		t.Errorf("got %v, want INVALID_INPUT", err)
	}
}

func TestLinearReproducibleInit(t *testing.T) {
	a := NewLinear(8, 2, 777)
	b := NewLinear(8, 2, 777)
	for i := range a.W {
		if a.W[i] != b.W[i] {
			t.Fatal("same seed must produce identical weights")
		}
	}
	c := NewLinear(8, 2, 778)
	same := true
	for i := range a.W {
		if a.W[i] != c.W[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical weights")
	}
}

func TestLinearClone(t *testing.T) {
	m := NewLinear(2, 2, 1)
	cp := m.Clone()
	m.W[0] += 1
	m.B[0] += 1
	if cp.W[0] == m.W[0] || cp.B[0] == m.B[0] {
		t.Error("Clone must be a deep copy")
	}
}
