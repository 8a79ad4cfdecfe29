// Package store 是模型注册中心的存储实现。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//
//	var s core.Store = store.NewMemoryStore()
//	s, err := store.NewRedisStore("localhost:6379", 0)
package store

import (
	"fmt"

	"github.com/rushteam/vtag/config"
	"github.com/rushteam/vtag/core"
)

// FromConfig 按配置构建存储后端。cfg 为 nil 时返回 (nil, nil)，表示不启用注册中心。
func FromConfig(cfg *config.Registry) (core.Store, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.Addr, cfg.DB)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
