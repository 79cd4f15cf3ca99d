package feature

import (
	"errors"
	"strconv"
	"strings"

	"github.com/rushteam/neuralcalc/core"
)

const (
	// VectorWidth 是模型输入宽度，所有表达式都编码为 15 维
	VectorWidth = 15

	// PadValue 是补齐值（sentinel）
	PadValue float32 = 0.5

	// OpAdd / OpSub 是运算符编码
	OpAdd float32 = 1.0
	OpSub float32 = 0.0
)

// Tokenizer 把算术表达式编码为定长特征向量。
//
// 编码规则：
//   - 按单个空格切分（连续空格会产生空 token，不做容错）
//   - 偶数位置：数字，按 float32 解析
//   - 奇数位置：运算符，"+" → 1.0，"-" → 0.0
//   - 不足 15 位用 0.5 补齐
//
// 示例：
//
//	"1 + 2" → [1, 1, 2, 0.5, 0.5, ..., 0.5]
//	"5 - 3" → [5, 0, 3, 0.5, 0.5, ..., 0.5]
//
// Tokenizer 无状态，零值可直接使用，并发安全。
type Tokenizer struct{}

// NewTokenizer 创建编码器
func NewTokenizer() *Tokenizer {
	return &Tokenizer{}
}

// Tokenize 编码单个表达式。
func (t *Tokenizer) Tokenize(expr string) ([]float32, error) {
	tokens := strings.Split(expr, " ")
	if len(tokens) > VectorWidth {
		return nil, core.NewDomainErrorf(core.ModuleTokenizer, core.ErrorCodeTooManyTokens,
			"too many tokens: %d (max %d)", len(tokens), VectorWidth)
	}

	vec := make([]float32, VectorWidth)
	for i, tok := range tokens {
		if i%2 == 0 {
			v, err := parseOperand(tok)
			if err != nil {
				return nil, err
			}
			vec[i] = v
			continue
		}
		switch tok {
		case "+":
			vec[i] = OpAdd
		case "-":
			vec[i] = OpSub
		default:
			return nil, core.NewDomainErrorf(core.ModuleTokenizer, core.ErrorCodeUnknownOperator,
				"Unknown operator: %s", tok)
		}
	}

	// 以数字开头、数字结尾，token 数必为奇数
	if len(tokens)%2 == 0 {
		return nil, core.NewDomainErrorf(core.ModuleTokenizer, core.ErrorCodeMalformedExpression,
			"malformed expression: %d tokens, expected number after last operator", len(tokens))
	}

	for i := len(tokens); i < VectorWidth; i++ {
		vec[i] = PadValue
	}
	return vec, nil
}

// TokenizeBatch 批量编码，返回 len(exprs) × 15 的矩阵。
// 任一表达式失败即返回错误；需要逐条结果的调用方应直接使用 Tokenize。
func (t *Tokenizer) TokenizeBatch(exprs []string) ([][]float32, error) {
	out := make([][]float32, 0, len(exprs))
	for i, expr := range exprs {
		vec, err := t.Tokenize(expr)
		if err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}
		out = append(out, vec)
	}
	return out, nil
}

// BatchError 标记批量编码中失败的表达式下标
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return "expression " + strconv.Itoa(e.Index) + ": " + e.Err.Error()
}

func (e *BatchError) Unwrap() error { return e.Err }

// parseOperand 按 float32 解析数字。
// 超出 float32 范围时与强制类型转换一致：饱和为 ±Inf 或 0，不视为错误。
// 只接受十进制写法（含 inf/nan 与数字间的下划线），十六进制浮点数视为解析失败。
func parseOperand(tok string) (float32, error) {
	if hasHexPrefix(tok) {
		return 0, parseError(tok)
	}
	v, err := strconv.ParseFloat(tok, 32)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return float32(v), nil
		}
		return 0, parseError(tok)
	}
	return float32(v), nil
}

// hasHexPrefix 判断 token 是否为 [+-]0x 开头
func hasHexPrefix(tok string) bool {
	tok = strings.TrimLeft(tok, "+-")
	return len(tok) >= 2 && tok[0] == '0' && (tok[1] == 'x' || tok[1] == 'X')
}

func parseError(tok string) error {
	return core.NewDomainErrorf(core.ModuleTokenizer, core.ErrorCodeParse,
		"could not convert string to float: '%s'", tok)
}
