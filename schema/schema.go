// Package schema 声明序列化样本的特征 schema，并编译为可复用的解析规格。
//
// 训练/评估与在线推理共用同一份 Spec：标签字段标记为 Optional，
// 推理路径解析后直接丢弃标签输出，从而保证训练与服务的 schema 一致性。
package schema

import (
	"fmt"

	"github.com/rushteam/vtag/core"
)

// 视频级分类任务的固定维度。
const (
	// NClass 是类别词表大小（类别索引取值范围 [0, NClass)）
	NClass = 3862

	// RGBDim 是视觉 embedding 维度
	RGBDim = 1024

	// AudioDim 是音频 embedding 维度（仅解析，不进模型）
	AudioDim = 128
)

// 规范字段名。
const (
	FieldID        = "id"
	FieldMeanRGB   = "mean_rgb"
	FieldMeanAudio = "mean_audio"
	FieldLabels    = "labels"
)

// Kind 是字段的取值类型。
type Kind int

const (
	// KindFloatFixed 定长 float32 向量（长度必须严格等于 Length）
	KindFloatFixed Kind = iota
	// KindInt64Set 变长 int64 集合（如标签索引集）
	KindInt64Set
	// KindBytes 单值 bytes（如样本 ID）
	KindBytes
)

// MarshalText 把 Kind 序列化为可读名称（模型 bundle 元数据使用）。
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindFloatFixed:
		return []byte("float_fixed"), nil
	case KindInt64Set:
		return []byte("int64_set"), nil
	case KindBytes:
		return []byte("bytes"), nil
	}
	return nil, fmt.Errorf("schema: unknown kind %d", int(k))
}

// UnmarshalText 从名称还原 Kind。
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "float_fixed":
		*k = KindFloatFixed
	case "int64_set":
		*k = KindInt64Set
	case "bytes":
		*k = KindBytes
	default:
		return fmt.Errorf("schema: unknown kind %q", string(text))
	}
	return nil
}

// Field 描述一个特征字段：名称、类型、定长长度、是否可缺省。
type Field struct {
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Length   int    `json:"length,omitempty"`   // 仅 KindFloatFixed 有意义
	Optional bool   `json:"optional,omitempty"` // 可缺省字段在样本中不存在时不算解析错误
}

// Schema 是一份完整的特征声明。
//
// 约束：
//   - Primary 指定唯一的主输入字段（喂给模型的 embedding）
//   - Label 指定标签字段；其余声明但非主输入的字段仅做前向兼容解析
type Schema struct {
	Fields  []Field `json:"fields"`
	Primary string  `json:"primary"`
	Label   string  `json:"label"`
}

// Video 返回视频级分类的规范 schema（进程内构建一次，显式传递，不做全局单例）。
//
// 字段：
//   - id：样本 ID，可缺省，仅用于诊断
//   - mean_rgb：float32[1024]，主输入
//   - mean_audio：float32[128]，解析但不进模型（上游音频特征暂缺，预留）
//   - labels：int64 集合，可缺省（在线推理数据不带标签）
func Video() *Schema {
	return &Schema{
		Fields: []Field{
			{Name: FieldID, Kind: KindBytes, Optional: true},
			{Name: FieldMeanRGB, Kind: KindFloatFixed, Length: RGBDim},
			{Name: FieldMeanAudio, Kind: KindFloatFixed, Length: AudioDim, Optional: true},
			{Name: FieldLabels, Kind: KindInt64Set, Optional: true},
		},
		Primary: FieldMeanRGB,
		Label:   FieldLabels,
	}
}

// Spec 是编译后的解析规格：构建后不可变，可被任意多个解码器共享。
type Spec struct {
	fields  []Field
	byName  map[string]Field
	primary Field
	label   Field
	nClass  int
}

// Compile 校验 Schema 并编译为 Spec。
func (s *Schema) Compile() (*Spec, error) {
	return s.CompileN(NClass)
}

// CompileN 以给定类别数编译（测试用小词表时传入较小的 n）。
func (s *Schema) CompileN(nClass int) (*Spec, error) {
	if nClass <= 0 {
		return nil, core.NewDomainError(core.ModuleSchema, core.ErrorCodeSchema,
			fmt.Sprintf("schema: invalid class count %d", nClass))
	}
	byName := make(map[string]Field, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return nil, core.NewDomainError(core.ModuleSchema, core.ErrorCodeSchema,
				"schema: field with empty name")
		}
		if _, dup := byName[f.Name]; dup {
			return nil, core.NewDomainError(core.ModuleSchema, core.ErrorCodeSchema,
				fmt.Sprintf("schema: duplicate field %q", f.Name))
		}
		if f.Kind == KindFloatFixed && f.Length <= 0 {
			return nil, core.NewDomainError(core.ModuleSchema, core.ErrorCodeSchema,
				fmt.Sprintf("schema: fixed-length field %q needs positive length", f.Name))
		}
		byName[f.Name] = f
	}
	primary, ok := byName[s.Primary]
	if !ok || primary.Kind != KindFloatFixed {
		return nil, core.NewDomainError(core.ModuleSchema, core.ErrorCodeSchema,
			fmt.Sprintf("schema: primary input %q must be a declared fixed-length float field", s.Primary))
	}
	label, ok := byName[s.Label]
	if !ok || label.Kind != KindInt64Set {
		return nil, core.NewDomainError(core.ModuleSchema, core.ErrorCodeSchema,
			fmt.Sprintf("schema: label field %q must be a declared int64-set field", s.Label))
	}
	fields := make([]Field, len(s.Fields))
	copy(fields, s.Fields)
	return &Spec{
		fields:  fields,
		byName:  byName,
		primary: primary,
		label:   label,
		nClass:  nClass,
	}, nil
}

// Fields 返回声明顺序的字段列表（副本，Spec 保持不可变）。
func (sp *Spec) Fields() []Field {
	out := make([]Field, len(sp.fields))
	copy(out, sp.fields)
	return out
}

// Field 按名称查找字段。
func (sp *Spec) Field(name string) (Field, bool) {
	f, ok := sp.byName[name]
	return f, ok
}

// Primary 返回主输入字段。
func (sp *Spec) Primary() Field { return sp.primary }

// Label 返回标签字段。
func (sp *Spec) Label() Field { return sp.label }

// NClass 返回类别数（multi-hot 宽度）。
func (sp *Spec) NClass() int { return sp.nClass }
