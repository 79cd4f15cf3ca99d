package service

// ServiceType 服务类型
type ServiceType string

const (
	ServiceTypeLocal     ServiceType = "local"      // 进程内前馈网络（默认）
	ServiceTypeTFServing ServiceType = "tf_serving" // TensorFlow Serving（REST）
)

// ServiceConfig 服务配置
type ServiceConfig struct {
	// Type 服务类型，为空时按 local 处理
	Type ServiceType

	// WeightsPath 权重文件路径（local 使用）
	WeightsPath string

	// Endpoint 服务端点（tf_serving 使用），例如 "http://localhost:8501"
	Endpoint string

	// ModelName 模型名称
	ModelName string

	// ModelVersion 模型版本
	ModelVersion string

	// Timeout 超时时间（秒）
	Timeout int

	// Auth 认证信息（可选）
	Auth *AuthConfig
}

// AuthConfig 认证配置
type AuthConfig struct {
	Type     string // "basic", "bearer", "api_key"
	Username string
	Password string
	Token    string
	APIKey   string
}
