package record

import (
	"reflect"
	"testing"

	"github.com/rushteam/vtag/core"
)

func TestExampleRoundtrip(t *testing.T) {
	ex := Example{
		"id":       {Bytes: [][]byte{[]byte("vid-1")}},
		"mean_rgb": {Floats: []float32{0.5, -1.25, 3}},
		"labels":   {Ints: []int64{5, 12, 300}},
	}
	got, err := Parse(ex.Marshal())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(got, ex) {
		t.Errorf("roundtrip mismatch:\n got %+v\nwant %+v", got, ex)
	}
}

func TestParseEmpty(t *testing.T) {
	ex, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if len(ex) != 0 {
		t.Errorf("got %d features, want 0", len(ex))
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"truncated varint", []byte{0xff}},
		{"truncated length-delimited", []byte{0x0a, 0x10, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			if !core.IsParseError(err) {
				t.Errorf("got %v, want PARSE_ERROR", err)
			}
		})
	}
}

func TestParseSkipsUnknownFields(t *testing.T) {
	// 在合法样本后追加一个未知字段号（field 9, varint），解析应跳过
	raw := Example{"labels": {Ints: []int64{1}}}.Marshal()
	raw = append(raw, 0x48, 0x07)
	ex, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(ex["labels"].Ints, []int64{1}) {
		t.Errorf("labels = %v, want [1]", ex["labels"].Ints)
	}
}
