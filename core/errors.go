package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX）
//
// 使用场景：
//   - 词表/数据格式错误：SCHEMA_ERROR
//   - 单条样本解析错误：PARSE_ERROR
//   - 数据源错误：SOURCE_NOT_FOUND
//   - 类别权重退化：DEGENERATE_WEIGHT
//   - 模型存档错误：CHECKPOINT_ERROR
type DomainError struct {
	Code    string // 错误代码（如 "SCHEMA_ERROR", "PARSE_ERROR"）
	Message string // 错误消息
	Module  string // 模块名称（如 "vocab", "record", "dataset"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// GetDomainError 获取 DomainError（支持 %w 包装链），如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// 错误代码常量
const (
	ErrorCodeSchema           = "SCHEMA_ERROR"      // 词表/记录结构与 schema 不符
	ErrorCodeParse            = "PARSE_ERROR"       // 单条序列化样本不合法
	ErrorCodeSourceNotFound   = "SOURCE_NOT_FOUND"  // glob/路径未匹配到任何输入文件
	ErrorCodeDegenerateWeight = "DEGENERATE_WEIGHT" // 类别计数为 0 导致权重退化
	ErrorCodeCheckpoint       = "CHECKPOINT_ERROR"  // 模型存档读写失败
	ErrorCodeNotFound         = "NOT_FOUND"         // 资源不存在
	ErrorCodeInvalidInput     = "INVALID_INPUT"     // 输入无效
)

// 模块名称常量
const (
	ModuleVocab   = "vocab"   // 词表与类别权重
	ModuleSchema  = "schema"  // 特征 schema
	ModuleRecord  = "record"  // 记录解码
	ModuleDataset = "dataset" // 数据管道
	ModuleModel   = "model"   // 预测模型
	ModuleTrain   = "train"   // 训练编排
	ModuleServe   = "serve"   // 在线推理
	ModuleStore   = "store"   // 存储模块
)

func codeIs(err error, code string) bool {
	if err == nil {
		return false
	}
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsSchemaError 检查错误是否为 SCHEMA_ERROR
func IsSchemaError(err error) bool { return codeIs(err, ErrorCodeSchema) }

// IsParseError 检查错误是否为 PARSE_ERROR
func IsParseError(err error) bool { return codeIs(err, ErrorCodeParse) }

// IsSourceNotFound 检查错误是否为 SOURCE_NOT_FOUND
func IsSourceNotFound(err error) bool { return codeIs(err, ErrorCodeSourceNotFound) }

// IsDegenerateWeight 检查错误是否为 DEGENERATE_WEIGHT
func IsDegenerateWeight(err error) bool { return codeIs(err, ErrorCodeDegenerateWeight) }

// IsCheckpointError 检查错误是否为 CHECKPOINT_ERROR
func IsCheckpointError(err error) bool { return codeIs(err, ErrorCodeCheckpoint) }

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return codeIs(err, ErrorCodeNotFound) }
