package model

import (
	"fmt"
)

// FNN 是前馈神经网络（Feed-forward Neural Network）。
//
// 计算器使用的结构（FNN2）：
//
//	Input(15) → Dense(345) → PReLU → Dense(1, linear)
//
// 工程特征：
//   - 实时性：好（本地推理，单次约 15×345 + 345 次乘加）
//   - 确定性：权重只读，同一输入必得同一输出
//   - 并发：Predict 不修改任何状态，可并发调用
//
// 计算全程使用 float32，与训练框架的默认精度一致。
type FNN struct {
	name   string
	inDim  int
	outDim int
	Layers []Layer
}

// Layer 是网络中的一层。
type Layer interface {
	// Kind 返回层类型（dense / prelu / relu）
	Kind() string
	// OutDim 根据输入维度返回输出维度，维度不匹配时返回错误
	OutDim(inDim int) (int, error)
	// Forward 前向计算，in 的长度已由 NewFNN 校验
	Forward(in []float32) []float32
}

// NewFNN 创建网络并校验每一层的维度。
func NewFNN(name string, inputDim int, layers ...Layer) (*FNN, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("fnn: invalid input dim %d", inputDim)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("fnn: no layers")
	}
	dim := inputDim
	for i, l := range layers {
		next, err := l.OutDim(dim)
		if err != nil {
			return nil, fmt.Errorf("fnn: layer %d (%s): %w", i, l.Kind(), err)
		}
		dim = next
	}
	if dim != 1 {
		return nil, fmt.Errorf("fnn: output dim must be 1, got %d", dim)
	}
	if name == "" {
		name = "fnn"
	}
	return &FNN{name: name, inDim: inputDim, outDim: dim, Layers: layers}, nil
}

func (m *FNN) Name() string { return m.name }

func (m *FNN) InputDim() int { return m.inDim }

// Predict 前向传播，返回标量输出。
func (m *FNN) Predict(x []float32) (float32, error) {
	if len(x) != m.inDim {
		return 0, fmt.Errorf("fnn: input has %d features, want %d", len(x), m.inDim)
	}
	current := x
	for _, l := range m.Layers {
		current = l.Forward(current)
	}
	return current[0], nil
}

// Dense 全连接层：out[j] = act(bias[j] + Σ in[i] * kernel[i][j])
type Dense struct {
	// Kernel 权重矩阵，形状 [in][out]（与 Keras 导出的 kernel 一致）
	Kernel [][]float32
	// Bias 偏置，形状 [out]
	Bias []float32
	// Activation 激活函数：""/"linear" 或 "relu"
	Activation string
}

func (d *Dense) Kind() string { return "dense" }

func (d *Dense) OutDim(inDim int) (int, error) {
	if len(d.Kernel) != inDim {
		return 0, fmt.Errorf("kernel has %d rows, want %d", len(d.Kernel), inDim)
	}
	out := len(d.Bias)
	if out == 0 {
		return 0, fmt.Errorf("empty bias")
	}
	for i, row := range d.Kernel {
		if len(row) != out {
			return 0, fmt.Errorf("kernel row %d has %d columns, want %d", i, len(row), out)
		}
	}
	switch d.Activation {
	case "", "linear", "relu":
	default:
		return 0, fmt.Errorf("unsupported activation %q", d.Activation)
	}
	return out, nil
}

func (d *Dense) Forward(in []float32) []float32 {
	out := make([]float32, len(d.Bias))
	copy(out, d.Bias)
	for i, v := range in {
		row := d.Kernel[i]
		for j := range out {
			out[j] += v * row[j]
		}
	}
	if d.Activation == "relu" {
		for j := range out {
			out[j] = relu(out[j])
		}
	}
	return out
}

// PReLU 参数化 ReLU：x > 0 时输出 x，否则输出 alpha * x，alpha 按神经元学习。
type PReLU struct {
	Alpha []float32
}

func (p *PReLU) Kind() string { return "prelu" }

func (p *PReLU) OutDim(inDim int) (int, error) {
	if len(p.Alpha) != inDim {
		return 0, fmt.Errorf("alpha has %d values, want %d", len(p.Alpha), inDim)
	}
	return inDim, nil
}

func (p *PReLU) Forward(in []float32) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		if v > 0 {
			out[i] = v
		} else {
			out[i] = p.Alpha[i] * v
		}
	}
	return out
}

// ReLU 无参数激活层
type ReLU struct{}

func (ReLU) Kind() string { return "relu" }

func (ReLU) OutDim(inDim int) (int, error) { return inDim, nil }

func (ReLU) Forward(in []float32) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = relu(v)
	}
	return out
}

func relu(x float32) float32 {
	if x > 0 {
		return x
	}
	return 0
}

var _ Model = (*FNN)(nil)
