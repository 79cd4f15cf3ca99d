// Package neuralcalc 是一个用前馈神经网络「预测」算术表达式结果的计算器。
//
// 设计要点：
// - 表达式按空格切分后编码为定长 15 维向量（数字原值，+ → 1，- → 0，不足补 0.5）
// - 模型是 Dense → PReLU → Dense 的小型网络，可在进程内推理，也可交给 TF Serving
// - 每次预测附带参考值（actual）与误差（difference），便于观察模型的近似程度
package neuralcalc

import (
	"github.com/rushteam/neuralcalc/calculator"
	"github.com/rushteam/neuralcalc/feature"
)

// 轻量 facade：便于用户直接 import "neuralcalc" 使用核心抽象。
type Calculator = calculator.Calculator
type Result = calculator.Result
type Option = calculator.Option

// New 创建计算器，见 calculator.New
var New = calculator.New

// Tokenize 将表达式编码为 15 维特征向量，见 feature.Tokenizer
func Tokenize(expr string) ([]float32, error) {
	return feature.NewTokenizer().Tokenize(expr)
}
