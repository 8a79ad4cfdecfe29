package model

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rushteam/vtag/core"
	"github.com/rushteam/vtag/schema"
)

// Bundle 是可部署的模型制品：冻结权重 + 足以重建特征 schema 的元数据。
// 在线推理只依赖 bundle 本身，不依赖训练期配置。
//
// 目录布局：
//
//	<dir>/model.json   元数据（名称、维度、schema、导出时间）
//	<dir>/weights.bin  权重（小端 float32：先 W 后 B）
type Bundle struct {
	Model  *Linear
	Schema *schema.Schema
}

// Metadata 是 bundle 的 JSON 元数据。
type Metadata struct {
	Name      string         `json:"name"`
	Dim       int            `json:"dim"`
	NClass    int            `json:"n_class"`
	Schema    *schema.Schema `json:"schema"`
	CreatedAt time.Time      `json:"created_at"`
}

const (
	metadataFile = "model.json"
	weightsFile  = "weights.bin"
)

func checkpointErr(format string, args ...any) error {
	return core.NewDomainError(core.ModuleModel, core.ErrorCodeCheckpoint, fmt.Sprintf(format, args...))
}

// Save 原子地把 bundle 写入目录：先写临时目录，再 rename 到位。
// 半成品检查点绝不会出现在最终路径上。
func (b *Bundle) Save(dir string) error {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return checkpointErr("model: mkdir %s: %v", filepath.Dir(dir), err)
	}
	tmp := dir + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return checkpointErr("model: clean %s: %v", tmp, err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return checkpointErr("model: mkdir %s: %v", tmp, err)
	}
	meta := Metadata{
		Name:      b.Model.Name(),
		Dim:       b.Model.Dim,
		NClass:    b.Model.NClass,
		Schema:    b.Schema,
		CreatedAt: time.Now().UTC(),
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return checkpointErr("model: marshal metadata: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, metadataFile), metaBytes, 0o644); err != nil {
		return checkpointErr("model: write metadata: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, weightsFile), b.encodeWeights(), 0o644); err != nil {
		return checkpointErr("model: write weights: %v", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return checkpointErr("model: replace %s: %v", dir, err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		return checkpointErr("model: rename %s: %v", tmp, err)
	}
	return nil
}

// Load 从目录读取 bundle。
func Load(dir string) (*Bundle, error) {
	metaBytes, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, checkpointErr("model: read metadata: %v", err)
	}
	weights, err := os.ReadFile(filepath.Join(dir, weightsFile))
	if err != nil {
		return nil, checkpointErr("model: read weights: %v", err)
	}
	return decode(metaBytes, weights)
}

// Encode 把 bundle 打包为单个字节串（模型注册中心存储用）。
// 布局：uint32 元数据长度 + 元数据 JSON + 权重字节。
func (b *Bundle) Encode() ([]byte, error) {
	meta := Metadata{
		Name:      b.Model.Name(),
		Dim:       b.Model.Dim,
		NClass:    b.Model.NClass,
		Schema:    b.Schema,
		CreatedAt: time.Now().UTC(),
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, checkpointErr("model: marshal metadata: %v", err)
	}
	var buf bytes.Buffer
	var lenb [4]byte
	binary.LittleEndian.PutUint32(lenb[:], uint32(len(metaBytes)))
	buf.Write(lenb[:])
	buf.Write(metaBytes)
	buf.Write(b.encodeWeights())
	return buf.Bytes(), nil
}

// Decode 解包 Encode 的结果。
func Decode(blob []byte) (*Bundle, error) {
	if len(blob) < 4 {
		return nil, checkpointErr("model: bundle blob too short")
	}
	metaLen := binary.LittleEndian.Uint32(blob[:4])
	if int(metaLen) > len(blob)-4 {
		return nil, checkpointErr("model: bundle metadata length out of range")
	}
	return decode(blob[4:4+metaLen], blob[4+metaLen:])
}

func (b *Bundle) encodeWeights() []byte {
	m := b.Model
	out := make([]byte, 4*(len(m.W)+len(m.B)))
	off := 0
	for _, v := range m.W {
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(v))
		off += 4
	}
	for _, v := range m.B {
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(v))
		off += 4
	}
	return out
}

func decode(metaBytes, weights []byte) (*Bundle, error) {
	var meta Metadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, checkpointErr("model: parse metadata: %v", err)
	}
	if meta.Dim <= 0 || meta.NClass <= 0 {
		return nil, checkpointErr("model: invalid dims %dx%d", meta.Dim, meta.NClass)
	}
	want := 4 * (meta.NClass*meta.Dim + meta.NClass)
	if len(weights) != want {
		return nil, checkpointErr("model: weights have %d bytes, want %d", len(weights), want)
	}
	m := &Linear{
		Dim:    meta.Dim,
		NClass: meta.NClass,
		W:      make([]float32, meta.NClass*meta.Dim),
		B:      make([]float32, meta.NClass),
	}
	off := 0
	for i := range m.W {
		m.W[i] = math.Float32frombits(binary.LittleEndian.Uint32(weights[off:]))
		off += 4
	}
	for i := range m.B {
		m.B[i] = math.Float32frombits(binary.LittleEndian.Uint32(weights[off:]))
		off += 4
	}
	return &Bundle{Model: m, Schema: meta.Schema}, nil
}
