// Package vtag 是一个视频多标签分类工具包（Video Tagging Kit）。
//
// 设计要点：
// - Schema-first: 训练与推理共用同一份特征 schema，杜绝 train/serve skew
// - 流式数据管道: TFRecord 分片 → 乱序/批量 → 训练循环，背压由 channel 承担
// - 自包含制品: 导出的 bundle 携带 schema 与权重，推理端不依赖训练配置
//
// 包结构：
//   - schema/  特征规格定义与编译
//   - record/  tf.Example 兼容解码与 TFRecord 容器
//   - vocab/   类别词表与类别权重
//   - dataset/ 流式批数据管道（训练乱序重复 / 评估单趟）
//   - model/   线性 sigmoid 模型与 bundle 序列化
//   - train/   加权 BCE 目标、Adam、指标、训练编排
//   - serve/   在线推理适配器
//   - service/ HTTP 推理服务（TF Serving 兼容 REST）
//   - store/   模型注册中心存储（memory / redis）
//   - ext/     外部系统接入（Feast 在线特征库）
package vtag

import "github.com/rushteam/vtag/model"

// 轻量 facade：便于用户直接 import "vtag" 使用核心抽象。
type Predictor = model.Predictor
type Bundle = model.Bundle
