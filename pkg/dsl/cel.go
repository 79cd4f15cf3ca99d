package dsl

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// CELEval 使用 CEL (Common Expression Language) 求值。
//
// 用户输入不会直接交给 CEL：先用 Parse 校验为「数字 运算符 数字 …」，
// 再按运算符序列生成只含变量的程序，例如 "1 + 2 - 3" → "v0 + v1 - v2"，
// 数字作为 double 变量传入。相同运算符序列的程序只编译一次。
//
// CEL 是非图灵完备、无副作用的表达式语言，程序对象线程安全，可并发复用。
type CELEval struct {
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELEval 创建 CEL 求值器
func NewCELEval() *CELEval {
	return &CELEval{programs: make(map[string]cel.Program)}
}

// Evaluate 计算表达式
func (e *CELEval) Evaluate(expr string) (float64, error) {
	t, err := Parse(expr)
	if err != nil {
		return 0, err
	}

	prg, err := e.program(string(t.Ops))
	if err != nil {
		return 0, err
	}

	input := make(map[string]any, len(t.Operands))
	for i, v := range t.Operands {
		input[varName(i)] = v
	}
	out, _, err := prg.Eval(input)
	if err != nil {
		return 0, fmt.Errorf("eval error: %v", err)
	}

	result, ok := out.(types.Double)
	if !ok {
		return 0, fmt.Errorf("expression must return double, got %T", out.Value())
	}
	v := float64(result)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("result is not finite")
	}
	return v, nil
}

// program 获取或编译运算符序列对应的程序
func (e *CELEval) program(ops string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[ops]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	n := len(ops) + 1
	vars := make([]cel.EnvOption, 0, n)
	var src strings.Builder
	for i := 0; i < n; i++ {
		vars = append(vars, cel.Variable(varName(i), cel.DoubleType))
		if i > 0 {
			src.WriteString(" ")
			src.WriteByte(ops[i-1])
			src.WriteString(" ")
		}
		src.WriteString(varName(i))
	}

	env, err := cel.NewEnv(vars...)
	if err != nil {
		return nil, fmt.Errorf("cel env: %v", err)
	}
	ast, issues := env.Compile(src.String())
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %v", issues.Err())
	}
	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %v", err)
	}

	e.mu.Lock()
	e.programs[ops] = prg
	e.mu.Unlock()
	return prg, nil
}

func varName(i int) string {
	return "v" + strconv.Itoa(i)
}

var _ Evaluator = (*CELEval)(nil)
