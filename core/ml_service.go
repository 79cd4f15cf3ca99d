package core

import "context"

// MLService 是模型推理服务的领域接口（Model Runner）。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（service）实现
//   - 遵循依赖倒置原则：领域层定义接口，基础设施层实现接口
//   - 实现必须是只读的：权重加载一次，之后并发调用 Predict 安全
//
// 实现：
//   - service.LocalMLService：进程内前馈网络
//   - service.TFServingClient：远程 TensorFlow Serving
//   - service.CachedMLService：带预测缓存的装饰器
type MLService interface {
	// Predict 批量预测
	Predict(ctx context.Context, req *MLPredictRequest) (*MLPredictResponse, error)

	// Health 健康检查
	Health(ctx context.Context) error

	// Close 关闭连接
	Close(ctx context.Context) error
}

// MLPredictRequest 预测请求
type MLPredictRequest struct {
	// Instances 特征实例列表（每个实例是一个定长特征向量）
	// 格式：[[f1, f2, ..., f15], [f1, f2, ..., f15], ...]
	Instances [][]float32

	// ModelName 模型名称（可选，如果服务支持多模型）
	ModelName string

	// ModelVersion 模型版本（可选）
	ModelVersion string
}

// MLPredictResponse 预测响应
type MLPredictResponse struct {
	// Predictions 预测结果列表（与请求实例一一对应）
	Predictions []float32

	// ModelVersion 模型版本（如果服务返回）
	ModelVersion string
}
