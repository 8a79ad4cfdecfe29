// Package record 实现序列化样本的解码：
//
//   - example.go：tf.Example 兼容的 protobuf wire 编解码（基于 protowire，无需生成代码）
//   - tfrecord.go：TFRecord 容器格式（定长头 + masked CRC32-C 校验）
//   - decoder.go：按 schema.Spec 把原始字节批量解码为 core.Batch
package record

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/rushteam/vtag/core"
)

// Feature 是样本中单个字段的原始取值，三种列表类型至多一种非空。
//
// 对应 tf.Example 的 Feature oneof：
//
//	field 1: BytesList { repeated bytes value = 1 }
//	field 2: FloatList { repeated float value = 1 [packed] }
//	field 3: Int64List { repeated int64 value = 1 [packed] }
type Feature struct {
	Bytes  [][]byte
	Floats []float32
	Ints   []int64
}

// Example 是解析后的样本：字段名 -> 取值。
type Example map[string]Feature

func parseErr(format string, args ...any) error {
	return core.NewDomainError(core.ModuleRecord, core.ErrorCodeParse, fmt.Sprintf(format, args...))
}

// Parse 把一条序列化样本（tf.Example 兼容的 wire 字节）解析为 Example。
// 对不认识的字段号按 wire 规则跳过，保证前向兼容。
func Parse(raw []byte) (Example, error) {
	ex := make(Example)
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseErr("record: malformed example tag")
		}
		b = b[n:]
		if num == 1 && typ == protowire.BytesType {
			// Example.features
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, parseErr("record: malformed features message")
			}
			b = b[n:]
			if err := parseFeatures(msg, ex); err != nil {
				return nil, err
			}
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, parseErr("record: malformed example field %d", num)
		}
		b = b[n:]
	}
	return ex, nil
}

// parseFeatures 解析 Features 消息：field 1 是 map<string, Feature> 的重复条目。
func parseFeatures(msg []byte, ex Example) error {
	b := msg
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr("record: malformed feature map tag")
		}
		b = b[n:]
		if num == 1 && typ == protowire.BytesType {
			entry, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return parseErr("record: malformed feature map entry")
			}
			b = b[n:]
			name, feat, err := parseFeatureEntry(entry)
			if err != nil {
				return err
			}
			ex[name] = feat
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return parseErr("record: malformed feature map field %d", num)
		}
		b = b[n:]
	}
	return nil
}

// parseFeatureEntry 解析 map 条目：field 1 为 key（string），field 2 为 Feature 消息。
func parseFeatureEntry(entry []byte) (string, Feature, error) {
	var name string
	var feat Feature
	b := entry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", feat, parseErr("record: malformed map entry tag")
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", feat, parseErr("record: malformed feature name")
			}
			b = b[n:]
			name = string(v)
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", feat, parseErr("record: malformed feature body")
			}
			b = b[n:]
			f, err := parseFeature(v)
			if err != nil {
				return "", feat, err
			}
			feat = f
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", feat, parseErr("record: malformed map entry field %d", num)
			}
			b = b[n:]
		}
	}
	if name == "" {
		return "", feat, parseErr("record: feature entry without name")
	}
	return name, feat, nil
}

// parseFeature 解析 Feature oneof，packed 与非 packed 编码都接受。
func parseFeature(body []byte) (Feature, error) {
	var feat Feature
	b := body
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return feat, parseErr("record: malformed feature tag")
		}
		b = b[n:]
		if typ != protowire.BytesType {
			return feat, parseErr("record: unexpected wire type %d in feature", typ)
		}
		list, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return feat, parseErr("record: malformed feature list")
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			feat.Bytes, err = parseBytesList(list)
		case 2:
			feat.Floats, err = parseFloatList(list)
		case 3:
			feat.Ints, err = parseInt64List(list)
		default:
			// 未知 oneof 分支，跳过
		}
		if err != nil {
			return feat, err
		}
	}
	return feat, nil
}

func parseBytesList(msg []byte) ([][]byte, error) {
	var out [][]byte
	b := msg
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 || num != 1 || typ != protowire.BytesType {
			return nil, parseErr("record: malformed bytes list")
		}
		b = b[n:]
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, parseErr("record: malformed bytes value")
		}
		b = b[n:]
		val := make([]byte, len(v))
		copy(val, v)
		out = append(out, val)
	}
	return out, nil
}

func parseFloatList(msg []byte) ([]float32, error) {
	var out []float32
	b := msg
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 || num != 1 {
			return nil, parseErr("record: malformed float list")
		}
		b = b[n:]
		switch typ {
		case protowire.BytesType: // packed
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 || len(packed)%4 != 0 {
				return nil, parseErr("record: malformed packed float list")
			}
			b = b[n:]
			for len(packed) > 0 {
				v, n := protowire.ConsumeFixed32(packed)
				if n < 0 {
					return nil, parseErr("record: malformed packed float value")
				}
				packed = packed[n:]
				out = append(out, math.Float32frombits(v))
			}
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, parseErr("record: malformed float value")
			}
			b = b[n:]
			out = append(out, math.Float32frombits(v))
		default:
			return nil, parseErr("record: unexpected wire type %d in float list", typ)
		}
	}
	return out, nil
}

func parseInt64List(msg []byte) ([]int64, error) {
	var out []int64
	b := msg
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 || num != 1 {
			return nil, parseErr("record: malformed int64 list")
		}
		b = b[n:]
		switch typ {
		case protowire.BytesType: // packed
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, parseErr("record: malformed packed int64 list")
			}
			b = b[n:]
			for len(packed) > 0 {
				v, n := protowire.ConsumeVarint(packed)
				if n < 0 {
					return nil, parseErr("record: malformed packed int64 value")
				}
				packed = packed[n:]
				out = append(out, int64(v))
			}
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, parseErr("record: malformed int64 value")
			}
			b = b[n:]
			out = append(out, int64(v))
		default:
			return nil, parseErr("record: unexpected wire type %d in int64 list", typ)
		}
	}
	return out, nil
}

// Marshal 把 Example 编码为 wire 字节（数据工具与测试使用，列表统一用 packed 编码）。
func (ex Example) Marshal() []byte {
	var features []byte
	for name, feat := range ex {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendBytes(entry, []byte(name))
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendBytes(entry, marshalFeature(feat))

		features = protowire.AppendTag(features, 1, protowire.BytesType)
		features = protowire.AppendBytes(features, entry)
	}
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendBytes(out, features)
	return out
}

func marshalFeature(feat Feature) []byte {
	var body []byte
	switch {
	case feat.Bytes != nil:
		var list []byte
		for _, v := range feat.Bytes {
			list = protowire.AppendTag(list, 1, protowire.BytesType)
			list = protowire.AppendBytes(list, v)
		}
		body = protowire.AppendTag(body, 1, protowire.BytesType)
		body = protowire.AppendBytes(body, list)
	case feat.Floats != nil:
		var packed []byte
		for _, v := range feat.Floats {
			packed = protowire.AppendFixed32(packed, math.Float32bits(v))
		}
		var list []byte
		list = protowire.AppendTag(list, 1, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
		body = protowire.AppendTag(body, 2, protowire.BytesType)
		body = protowire.AppendBytes(body, list)
	case feat.Ints != nil:
		var packed []byte
		for _, v := range feat.Ints {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		var list []byte
		list = protowire.AppendTag(list, 1, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
		body = protowire.AppendTag(body, 3, protowire.BytesType)
		body = protowire.AppendBytes(body, list)
	}
	return body
}
