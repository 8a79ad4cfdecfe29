package dsl

import "testing"

func TestNewFilterEmpty(t *testing.T) {
	f, err := NewFilter("")
	if err != nil {
		t.Fatalf("NewFilter(\"\"): %v", err)
	}
	if f != nil {
		t.Fatal("empty expression should return nil filter")
	}
	// nil 过滤器保留一切
	keep, err := f.Keep("any", []int64{1, 2})
	if err != nil || !keep {
		t.Errorf("nil filter Keep = (%v, %v), want (true, nil)", keep, err)
	}
}

func TestFilterKeep(t *testing.T) {
	tests := []struct {
		expr   string
		id     string
		labels []int64
		want   bool
	}{
		{"num_labels > 0", "a", []int64{3}, true},
		{"num_labels > 0", "a", nil, false},
		{"3 in labels", "a", []int64{1, 3}, true},
		{"3 in labels", "a", []int64{1, 2}, false},
		{`id != "" && num_labels <= 2`, "vid-1", []int64{1, 2}, true},
		{`id != "" && num_labels <= 2`, "", []int64{1, 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := NewFilter(tt.expr)
			if err != nil {
				t.Fatalf("NewFilter(%q): %v", tt.expr, err)
			}
			keep, err := f.Keep(tt.id, tt.labels)
			if err != nil {
				t.Fatalf("Keep: %v", err)
			}
			if keep != tt.want {
				t.Errorf("Keep(%q, %v) = %v, want %v", tt.id, tt.labels, keep, tt.want)
			}
		})
	}
}

func TestFilterErrors(t *testing.T) {
	if _, err := NewFilter("num_labels >"); err == nil {
		t.Error("bad expression compiled, want error")
	}
	if _, err := NewFilter("unknown_var > 0"); err == nil {
		t.Error("undeclared variable compiled, want error")
	}
	f, err := NewFilter("num_labels + 1")
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	if _, err := f.Keep("a", nil); err == nil {
		t.Error("non-boolean expression evaluated, want error")
	}
}
