// Package vocab 加载类别词表并推导类别权重，用于对抗标签分布不均衡。
package vocab

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/rushteam/vtag/core"
)

// Entry 是词表中的一行：类别索引与该类别在训练集中的样本数。
// 词表 CSV 允许携带额外列（如类别名称），此处只消费这两列。
type Entry struct {
	Index           int64 `csv:"Index"`
	TrainVideoCount int64 `csv:"TrainVideoCount"`
}

// ObjectClient 是对象存储客户端接口（不直接依赖具体 SDK，支持依赖注入）。
// 兼容 AWS S3、阿里云 OSS、腾讯云 COS、MinIO 等对象存储，远程词表走此接口。
type ObjectClient interface {
	// GetObject 获取对象内容
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

func schemaErr(format string, args ...any) error {
	return core.NewDomainError(core.ModuleVocab, core.ErrorCodeSchema, fmt.Sprintf(format, args...))
}

// LoadCatalog 从 reader 读取词表 CSV 并按 Index 升序排序。
//
// 校验：
//   - 必须包含 Index 与 TrainVideoCount 两列（缺列 → SCHEMA_ERROR）
//   - TrainVideoCount 不允许为负
func LoadCatalog(r io.Reader) ([]Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vocab: read catalog: %w", err)
	}
	if err := checkHeader(data); err != nil {
		return nil, err
	}
	var entries []Entry
	if err := gocsv.UnmarshalBytes(data, &entries); err != nil {
		return nil, schemaErr("vocab: parse catalog csv: %v", err)
	}
	for _, e := range entries {
		if e.TrainVideoCount < 0 {
			return nil, schemaErr("vocab: class %d has negative count %d", e.Index, e.TrainVideoCount)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	return entries, nil
}

// checkHeader 显式校验表头；gocsv 对缺失列只会留零值，这里提前报 SCHEMA_ERROR。
func checkHeader(data []byte) error {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	cols := strings.Split(strings.TrimRight(string(line), "\r"), ",")
	found := map[string]bool{}
	for _, c := range cols {
		found[strings.TrimSpace(c)] = true
	}
	for _, want := range []string{"Index", "TrainVideoCount"} {
		if !found[want] {
			return schemaErr("vocab: catalog missing required column %q", want)
		}
	}
	return nil
}

// ClassWeights 由词表计算类别权重向量。
//
// 公式：w_i = total / (M * cnt_i)，其中 M 是 cnt > 0 的类别数，
// 再逐元素取 scale 次幂。
//
// 零计数类别的显式处理（必须避免 Inf/NaN 渗入损失）：
// cnt_i == 0 的类别不参与归一化，权重钳为中性值 1.0 ——
// 该类别在训练数据中本就不出现，损失中的权重只作用于负样本项。
// 在此策略下归一化性质 Σ cnt_i·w_i = Σ cnt_i 在 scale=1 时依然成立。
//
// 校验：
//   - 词表行数必须等于 nClass，索引稠密覆盖 [0, nClass)（SCHEMA_ERROR）
func ClassWeights(entries []Entry, nClass int, scale float64) ([]float32, error) {
	if len(entries) != nClass {
		return nil, schemaErr("vocab: catalog has %d rows, want %d", len(entries), nClass)
	}
	var total int64
	nonzero := 0
	for i, e := range entries {
		if e.Index != int64(i) {
			return nil, schemaErr("vocab: class indices not dense: row %d has index %d", i, e.Index)
		}
		total += e.TrainVideoCount
		if e.TrainVideoCount > 0 {
			nonzero++
		}
	}
	if nonzero == 0 {
		return nil, core.NewDomainError(core.ModuleVocab, core.ErrorCodeDegenerateWeight,
			"vocab: all classes have zero training count")
	}
	weights := make([]float32, nClass)
	for i, e := range entries {
		w := 1.0
		if e.TrainVideoCount > 0 {
			w = float64(total) / (float64(nonzero) * float64(e.TrainVideoCount))
		}
		weights[i] = float32(math.Pow(w, scale))
	}
	return weights, nil
}

// LoadClassWeights 读取本地词表文件并计算权重（训练编排入口）。
func LoadClassWeights(path string, nClass int, scale float64) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: open %s: %w", path, err)
	}
	defer f.Close()
	entries, err := LoadCatalog(f)
	if err != nil {
		return nil, err
	}
	return ClassWeights(entries, nClass, scale)
}

// LoadClassWeightsObject 从对象存储读取词表并计算权重（远程词表路径）。
func LoadClassWeightsObject(ctx context.Context, client ObjectClient, bucket, key string, nClass int, scale float64) ([]float32, error) {
	if client == nil {
		return nil, fmt.Errorf("vocab: object client not set")
	}
	rc, err := client.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("vocab: get object %s/%s: %w", bucket, key, err)
	}
	defer rc.Close()
	entries, err := LoadCatalog(rc)
	if err != nil {
		return nil, err
	}
	return ClassWeights(entries, nClass, scale)
}
