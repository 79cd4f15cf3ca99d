package model

// Model 是推理阶段的最小抽象：输入定长特征向量，输出一个回归值。
// 具体实现可以是进程内前馈网络（FNN），也可以由 service 包对接远程模型服务。
type Model interface {
	Name() string
	// InputDim 返回模型期望的输入维度
	InputDim() int
	Predict(x []float32) (float32, error)
}
