// Package dsl 提供受限的算术表达式求值，用于计算预测结果的参考值（actual）。
//
// 语法只包含十进制数字与 + / -，严格从左到右求值，不支持括号、变量或函数调用，
// 因此用户输入永远不会被当作代码执行。
package dsl

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Evaluator 计算表达式的精确值
type Evaluator interface {
	Evaluate(expr string) (float64, error)
}

// numberPattern 只接受十进制字面量（可带符号、小数、指数），拒绝 inf/nan/十六进制
var numberPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// Terms 是解析后的表达式：Operands[0] Ops[0] Operands[1] Ops[1] ...
type Terms struct {
	Operands []float64
	Ops      []byte // '+' 或 '-'
}

// Parse 按任意空白切分并校验 token 交替出现。
func Parse(expr string) (*Terms, error) {
	tokens := strings.Fields(expr)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	if len(tokens)%2 == 0 {
		return nil, fmt.Errorf("expression must end with a number")
	}

	t := &Terms{
		Operands: make([]float64, 0, len(tokens)/2+1),
		Ops:      make([]byte, 0, len(tokens)/2),
	}
	for i, tok := range tokens {
		if i%2 == 1 {
			if tok != "+" && tok != "-" {
				return nil, fmt.Errorf("unsupported operator %q", tok)
			}
			t.Ops = append(t.Ops, tok[0])
			continue
		}
		if !numberPattern.MatchString(tok) {
			return nil, fmt.Errorf("invalid number %q", tok)
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", tok, err)
		}
		t.Operands = append(t.Operands, v)
	}
	return t, nil
}

// Eval 是原生实现：从左到右累加。零值可直接使用。
type Eval struct{}

// NewEval 创建原生求值器
func NewEval() *Eval { return &Eval{} }

// Evaluate 计算表达式，结果非有限值（溢出）时返回错误
func (e *Eval) Evaluate(expr string) (float64, error) {
	t, err := Parse(expr)
	if err != nil {
		return 0, err
	}
	acc := t.Operands[0]
	for i, op := range t.Ops {
		if op == '+' {
			acc += t.Operands[i+1]
		} else {
			acc -= t.Operands[i+1]
		}
	}
	if math.IsInf(acc, 0) || math.IsNaN(acc) {
		return 0, fmt.Errorf("result is not finite")
	}
	return acc, nil
}

var _ Evaluator = (*Eval)(nil)
