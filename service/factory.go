package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rushteam/neuralcalc/core"
)

// NewMLService 根据配置创建 MLService 实例（工厂方法）。
// local 类型会立即加载权重，文件缺失时返回错误。
func NewMLService(config *ServiceConfig) (core.MLService, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	switch config.Type {
	case ServiceTypeLocal, "":
		return LoadLocalMLService(config.WeightsPath, config.ModelVersion)

	case ServiceTypeTFServing:
		opts := []TFServingOption{
			WithTFServingTimeout(timeout),
		}
		if config.ModelVersion != "" {
			opts = append(opts, WithTFServingVersion(config.ModelVersion))
		}
		if config.Auth != nil {
			opts = append(opts, WithTFServingAuth(config.Auth))
		}
		return NewTFServingClient(config.Endpoint, config.ModelName, opts...), nil

	default:
		return nil, fmt.Errorf("unsupported service type: %s", config.Type)
	}
}

// ValidateConfig 验证服务配置
func ValidateConfig(config *ServiceConfig) error {
	if config == nil {
		return fmt.Errorf("service config is required")
	}
	switch config.Type {
	case ServiceTypeLocal, "":
		if config.WeightsPath == "" {
			return fmt.Errorf("weights path is required")
		}
	case ServiceTypeTFServing:
		if config.Endpoint == "" {
			return fmt.Errorf("endpoint is required")
		}
		if !hasHTTPPrefix(config.Endpoint) {
			return fmt.Errorf("tf_serving endpoint must be http(s): %s", config.Endpoint)
		}
		if config.ModelName == "" {
			return fmt.Errorf("model name is required")
		}
	default:
		return fmt.Errorf("unsupported service type: %s", config.Type)
	}
	return nil
}

// hasHTTPPrefix 检查是否包含 HTTP 前缀
func hasHTTPPrefix(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// TestConnection 测试服务连接
func TestConnection(ctx context.Context, svc core.MLService) error {
	if svc == nil {
		return core.ErrModelUnavailable
	}
	return svc.Health(ctx)
}
