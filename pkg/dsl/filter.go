// Package dsl 提供基于 CEL (Common Expression Language) 的样本过滤表达式。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("labels", cel.ListType(cel.IntType)),
		cel.Variable("num_labels", cel.IntType),
	)
	return env, err
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	var err error
	celEnvOnce.Do(func() {
		celEnv, err = initCELEnv()
	})
	if celEnv == nil && err == nil {
		err = fmt.Errorf("dsl: cel env not initialized")
	}
	return celEnv, err
}

// Filter 是样本过滤器，表达式在构建时编译一次，可并发复用。
//
// 可用变量：
//   - id: 样本 ID（string，可能为空串）
//   - labels: 去重后的标签索引列表（list<int>）
//   - num_labels: 标签数（int）
//
// 示例：
//   - `num_labels > 0` → 丢弃无标签样本
//   - `3 in labels` → 只保留含类别 3 的样本
//   - `id != "" && num_labels <= 5` → 组合条件
type Filter struct {
	expr string
	prg  cel.Program
}

// NewFilter 编译过滤表达式。空表达式返回 nil（不过滤）。
func NewFilter(expr string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("dsl: init cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("dsl: compile %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("dsl: program %q: %w", expr, err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// Expr 返回原始表达式（用于日志）。
func (f *Filter) Expr() string { return f.expr }

// Keep 判定样本是否保留。表达式结果必须是 bool。
func (f *Filter) Keep(id string, labels []int64) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, _, err := f.prg.Eval(map[string]any{
		"id":         id,
		"labels":     labels,
		"num_labels": int64(len(labels)),
	})
	if err != nil {
		return false, fmt.Errorf("dsl: eval %q: %w", f.expr, err)
	}
	keep, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("dsl: expression %q is not boolean", f.expr)
	}
	return keep, nil
}
