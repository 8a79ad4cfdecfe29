package record

import (
	"github.com/rushteam/vtag/core"
	"github.com/rushteam/vtag/schema"
)

// Decoder 按编译后的 schema.Spec 解码样本。
//
// Decoder 是纯函数式的：不持有隐藏状态，任意批大小（含 batch=1 的在线路径）
// 产出的编码逐位一致，样本之间互不影响。
type Decoder struct {
	spec *schema.Spec
}

// NewDecoder 创建解码器。Spec 构建一次后在训练与推理两侧共享。
func NewDecoder(spec *schema.Spec) *Decoder {
	return &Decoder{spec: spec}
}

// Spec 返回解码器使用的解析规格。
func (d *Decoder) Spec() *schema.Spec { return d.spec }

// Decoded 是单条样本的解码结果（组批前的中间形态）。
type Decoded struct {
	ID         string
	Features   map[string][]float32
	LabelHot   []float32 // multi-hot，宽度 NClass
	LabelIndex []int64   // 去重后的标签索引（过滤 DSL 使用）
}

// DecodeOne 解码单条样本。
//
// 校验规则：
//   - 定长 float 字段长度必须严格相等（绝不把畸形数据补零成特征）
//   - 标签索引必须落在 [0, NClass)，重复索引折叠（multi-hot 幂等）
//   - Optional 字段缺失合法：标签缺失时产出全零 multi-hot（在线推理数据不带标签）
func (d *Decoder) DecodeOne(raw []byte) (*Decoded, error) {
	ex, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	out := &Decoded{
		Features: make(map[string][]float32),
		LabelHot: make([]float32, d.spec.NClass()),
	}
	if f, ok := ex[schema.FieldID]; ok && len(f.Bytes) > 0 {
		out.ID = string(f.Bytes[0])
	}
	for _, field := range d.spec.Fields() {
		feat, present := ex[field.Name]
		switch field.Kind {
		case schema.KindFloatFixed:
			if !present || feat.Floats == nil {
				if field.Optional {
					continue
				}
				return nil, parseErrID(out.ID, "record: missing field %q", field.Name)
			}
			if len(feat.Floats) != field.Length {
				return nil, parseErrID(out.ID, "record: field %q has %d values, want %d",
					field.Name, len(feat.Floats), field.Length)
			}
			vec := make([]float32, field.Length)
			copy(vec, feat.Floats)
			out.Features[field.Name] = vec
		case schema.KindInt64Set:
			if !present || feat.Ints == nil {
				if field.Optional {
					continue
				}
				return nil, parseErrID(out.ID, "record: missing field %q", field.Name)
			}
			for _, idx := range feat.Ints {
				if idx < 0 || idx >= int64(d.spec.NClass()) {
					return nil, parseErrID(out.ID, "record: label index %d out of range [0,%d)",
						idx, d.spec.NClass())
				}
				if out.LabelHot[idx] == 0 {
					out.LabelHot[idx] = 1
					out.LabelIndex = append(out.LabelIndex, idx)
				}
			}
		case schema.KindBytes:
			// id 已单独提取，其余 bytes 字段仅做前向兼容解析
		}
	}
	return out, nil
}

// Decode 把一批原始字节解码为 (FeatureBatch, LabelBatch)。
// 任意一条样本不合法即整批失败（fail-fast；流式跳过策略见 dataset 包）。
func (d *Decoder) Decode(raws [][]byte) (*core.Batch, error) {
	decoded := make([]*Decoded, 0, len(raws))
	for _, raw := range raws {
		one, err := d.DecodeOne(raw)
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, one)
	}
	return d.Assemble(decoded), nil
}

// Assemble 把已解码样本组装为批张量，批维度在前。
func (d *Decoder) Assemble(decoded []*Decoded) *core.Batch {
	batch := &core.Batch{
		Features: make(map[string][][]float32),
		Labels:   make([][]float32, len(decoded)),
		IDs:      make([]string, len(decoded)),
	}
	for _, field := range d.spec.Fields() {
		if field.Kind != schema.KindFloatFixed {
			continue
		}
		rows := make([][]float32, len(decoded))
		any := false
		for i, one := range decoded {
			if vec, ok := one.Features[field.Name]; ok {
				rows[i] = vec
				any = true
			}
		}
		if any {
			batch.Features[field.Name] = rows
		}
	}
	for i, one := range decoded {
		batch.Labels[i] = one.LabelHot
		batch.IDs[i] = one.ID
	}
	return batch
}

func parseErrID(id, format string, args ...any) error {
	err := parseErr(format, args...)
	if id != "" {
		if de := core.GetDomainError(err); de != nil {
			de.Message = de.Message + " (id=" + id + ")"
		}
	}
	return err
}
