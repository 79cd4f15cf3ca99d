package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX），包装过的错误（%w）同样可以识别
//
// 使用场景：
//   - Tokenizer 错误：PARSE_ERROR, UNKNOWN_OPERATOR, MALFORMED_EXPRESSION, TOO_MANY_TOKENS
//   - Model 错误：UNAVAILABLE
//   - Store 错误：NOT_FOUND
type DomainError struct {
	Code    string // 错误代码（如 "PARSE_ERROR", "UNAVAILABLE"）
	Message string // 错误消息
	Module  string // 模块名称（如 "tokenizer", "model", "store"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is 按 Module + Code 比较，便于 errors.Is(err, ErrModelUnavailable) 这类哨兵判断。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code
}

// IsDomainError 检查错误是否为 DomainError 类型
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取 DomainError，如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorf 同 NewDomainError，消息支持格式化
func NewDomainErrorf(module, code, format string, args ...any) *DomainError {
	return NewDomainError(module, code, fmt.Sprintf(format, args...))
}

// 错误代码常量
const (
	// 通用错误代码
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误

	// 表达式编码错误代码
	ErrorCodeParse               = "PARSE_ERROR"          // 应为数字的位置无法解析
	ErrorCodeUnknownOperator     = "UNKNOWN_OPERATOR"     // 应为运算符的位置不是 + / -
	ErrorCodeMalformedExpression = "MALFORMED_EXPRESSION" // token 数为偶数，缺少末尾操作数
	ErrorCodeTooManyTokens       = "TOO_MANY_TOKENS"      // token 数超过特征向量宽度
)

// 模块名称常量
const (
	ModuleTokenizer = "tokenizer" // 表达式编码
	ModuleModel     = "model"     // 模型推理
	ModuleStore     = "store"     // 存储模块
	ModuleService   = "service"   // 服务模块
)

// ErrModelUnavailable 表示模型未加载（权重文件缺失或加载失败）
var ErrModelUnavailable = NewDomainError(ModuleModel, ErrorCodeUnavailable, "model not loaded")

// 通用错误检查函数

func hasCode(err error, module, code string) bool {
	domainErr := GetDomainError(err)
	if domainErr == nil {
		return false
	}
	if module != "" && domainErr.Module != module {
		return false
	}
	return domainErr.Code == code
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool {
	return hasCode(err, "", ErrorCodeNotFound)
}

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool {
	return hasCode(err, "", ErrorCodeUnavailable)
}

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool {
	return hasCode(err, "", ErrorCodeInvalidInput)
}

// IsParseError 数字位置解析失败
func IsParseError(err error) bool {
	return hasCode(err, ModuleTokenizer, ErrorCodeParse)
}

// IsUnknownOperator 运算符位置出现 + / - 以外的 token
func IsUnknownOperator(err error) bool {
	return hasCode(err, ModuleTokenizer, ErrorCodeUnknownOperator)
}

// IsMalformedExpression token 数为偶数
func IsMalformedExpression(err error) bool {
	return hasCode(err, ModuleTokenizer, ErrorCodeMalformedExpression)
}

// IsTooManyTokens token 数超过 15
func IsTooManyTokens(err error) bool {
	return hasCode(err, ModuleTokenizer, ErrorCodeTooManyTokens)
}

// IsTokenizerError 任意表达式编码错误（客户端输入问题）
func IsTokenizerError(err error) bool {
	domainErr := GetDomainError(err)
	return domainErr != nil && domainErr.Module == ModuleTokenizer
}
