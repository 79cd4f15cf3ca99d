// Package calculator 串联表达式编码、模型推理与参考值计算。
//
// 数据流：
//
//	表达式 → feature.Tokenizer → [15]float32 → core.MLService → 预测值
//	                                                  ↘ dsl.Evaluator → actual / difference
package calculator

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/rushteam/neuralcalc/core"
	"github.com/rushteam/neuralcalc/feature"
	"github.com/rushteam/neuralcalc/pkg/conv"
	"github.com/rushteam/neuralcalc/pkg/dsl"
)

// DefaultPrecision 是结果保留的小数位数
const DefaultPrecision = 4

// Result 是单个表达式的计算结果。
// Actual 无法计算时为 nil，此时 Difference 也为 nil。
type Result struct {
	Expression string   `json:"expression"`
	Result     float64  `json:"result"`
	Actual     *float64 `json:"actual"`
	Difference *float64 `json:"difference"`
}

// ItemResult 是批量计算中的一项，Err 与 Result 二选一。
type ItemResult struct {
	Expression string
	Result     *Result
	Err        error
}

// Calculator 是无状态的计算服务，模型与求值器在构造后只读，可并发使用。
type Calculator struct {
	tokenizer *feature.Tokenizer
	ml        core.MLService
	evaluator dsl.Evaluator
	recorder  core.PredictionRecorder
	logger    *slog.Logger
	precision int
	now       func() time.Time
}

// Option 计算器配置选项
type Option func(*Calculator)

// WithEvaluator 设置参考值求值器，默认 dsl.Eval
func WithEvaluator(ev dsl.Evaluator) Option {
	return func(c *Calculator) {
		c.evaluator = ev
	}
}

// WithRecorder 记录每次成功的预测
func WithRecorder(r core.PredictionRecorder) Option {
	return func(c *Calculator) {
		c.recorder = r
	}
}

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calculator) {
		c.logger = logger
	}
}

// WithPrecision 设置结果小数位数
func WithPrecision(places int) Option {
	return func(c *Calculator) {
		if places >= 0 {
			c.precision = places
		}
	}
}

// New 创建计算器。ml 为 nil 表示模型未加载，所有计算返回 core.ErrModelUnavailable。
func New(ml core.MLService, opts ...Option) *Calculator {
	c := &Calculator{
		tokenizer: feature.NewTokenizer(),
		ml:        ml,
		evaluator: dsl.NewEval(),
		logger:    slog.Default(),
		precision: DefaultPrecision,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ModelLoaded 模型是否可用
func (c *Calculator) ModelLoaded() bool {
	return c.ml != nil
}

// Health 检查模型服务
func (c *Calculator) Health(ctx context.Context) error {
	if c.ml == nil {
		return core.ErrModelUnavailable
	}
	return c.ml.Health(ctx)
}

// Calculate 计算单个表达式。
// 编码错误原样返回（core.IsTokenizerError 可识别），推理错误包装为内部错误。
func (c *Calculator) Calculate(ctx context.Context, expr string) (*Result, error) {
	if c.ml == nil {
		return nil, core.ErrModelUnavailable
	}
	return c.calculate(ctx, expr)
}

// BatchCalculate 逐个计算，单项失败写入该项的 Err，不影响其他项。
// 仅在模型未加载时返回错误。
func (c *Calculator) BatchCalculate(ctx context.Context, exprs []string) ([]ItemResult, error) {
	if c.ml == nil {
		return nil, core.ErrModelUnavailable
	}
	results := make([]ItemResult, len(exprs))
	for i, expr := range exprs {
		results[i].Expression = expr
		res, err := c.calculate(ctx, expr)
		if err != nil {
			c.logger.DebugContext(ctx, "batch item failed", "index", i, "expression", expr, "error", err)
			results[i].Err = err
			continue
		}
		results[i].Result = res
	}
	return results, nil
}

func (c *Calculator) calculate(ctx context.Context, expr string) (*Result, error) {
	vec, err := c.tokenizer.Tokenize(expr)
	if err != nil {
		return nil, err
	}

	resp, err := c.ml.Predict(ctx, &core.MLPredictRequest{Instances: [][]float32{vec}})
	if err != nil {
		return nil, core.NewDomainErrorf(core.ModuleModel, core.ErrorCodeInternalError, "predict: %v", err)
	}
	if len(resp.Predictions) != 1 {
		return nil, core.NewDomainErrorf(core.ModuleModel, core.ErrorCodeInternalError,
			"predict: got %d predictions for 1 instance", len(resp.Predictions))
	}
	y := float64(resp.Predictions[0])
	if !conv.IsFinite(y) {
		return nil, core.NewDomainErrorf(core.ModuleModel, core.ErrorCodeInternalError,
			"model returned non-finite prediction %v", y)
	}

	res := &Result{
		Expression: expr,
		Result:     conv.Round(y, c.precision),
	}
	if actual, err := c.evaluator.Evaluate(expr); err == nil {
		res.Actual = conv.Ptr(actual)
		res.Difference = conv.Ptr(math.Abs(y - actual))
	} else {
		c.logger.DebugContext(ctx, "actual unavailable", "expression", expr, "error", err)
	}

	c.record(ctx, res, y, resp.ModelVersion)
	return res, nil
}

func (c *Calculator) record(ctx context.Context, res *Result, y float64, version string) {
	if c.recorder == nil {
		return
	}
	err := c.recorder.Record(ctx, &core.PredictionRecord{
		Expression:   res.Expression,
		Prediction:   y,
		Actual:       res.Actual,
		Difference:   res.Difference,
		ModelVersion: version,
		CreatedAt:    c.now(),
	})
	if err != nil {
		c.logger.WarnContext(ctx, "record prediction failed", "expression", res.Expression, "error", err)
	}
}
