package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rushteam/neuralcalc/core"
)

// TFServingClient 是 TensorFlow Serving 的 REST 客户端实现。
//
// 训练侧产出的是 Keras 模型，也可以直接以 SavedModel 形式部署到 TF Serving，
// 此时计算器只负责编码表达式，推理交给远程服务。
//
// 协议：
//   - 预测：POST {endpoint}/v1/models/{name}[/versions/{v}]:predict
//     请求 {"instances": [[15 个 float], ...]}，响应 {"predictions": [[y], ...]}
//   - 健康：GET {endpoint}/v1/models/{name}
type TFServingClient struct {
	// Endpoint 服务端点，例如 "http://localhost:8501"
	Endpoint string

	// ModelName 模型名称
	ModelName string

	// ModelVersion 模型版本（可选，为空则使用最新版本）
	ModelVersion string

	// SignatureName 签名名称（可选，默认为 "serving_default"）
	SignatureName string

	// Timeout 超时时间
	Timeout time.Duration

	// Auth 认证信息
	Auth *AuthConfig

	httpClient *http.Client
}

// NewTFServingClient 创建一个新的 TF Serving 客户端。
func NewTFServingClient(endpoint, modelName string, opts ...TFServingOption) *TFServingClient {
	client := &TFServingClient{
		Endpoint:      strings.TrimRight(endpoint, "/"),
		ModelName:     modelName,
		SignatureName: "serving_default",
		Timeout:       30 * time.Second,
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: client.Timeout}
	}
	return client
}

// TFServingOption TF Serving 客户端配置选项
type TFServingOption func(*TFServingClient)

// WithTFServingVersion 设置模型版本
func WithTFServingVersion(version string) TFServingOption {
	return func(c *TFServingClient) {
		c.ModelVersion = version
	}
}

// WithTFServingSignature 设置签名名称
func WithTFServingSignature(signatureName string) TFServingOption {
	return func(c *TFServingClient) {
		c.SignatureName = signatureName
	}
}

// WithTFServingTimeout 设置超时时间
func WithTFServingTimeout(timeout time.Duration) TFServingOption {
	return func(c *TFServingClient) {
		c.Timeout = timeout
	}
}

// WithTFServingAuth 设置认证信息
func WithTFServingAuth(auth *AuthConfig) TFServingOption {
	return func(c *TFServingClient) {
		c.Auth = auth
	}
}

// WithTFServingHTTPClient 使用自定义 HTTP 客户端（测试时注入 httptest 客户端）
func WithTFServingHTTPClient(hc *http.Client) TFServingOption {
	return func(c *TFServingClient) {
		c.httpClient = hc
	}
}

func (c *TFServingClient) modelURL() string {
	if c.ModelVersion != "" {
		return fmt.Sprintf("%s/v1/models/%s/versions/%s", c.Endpoint, c.ModelName, c.ModelVersion)
	}
	return fmt.Sprintf("%s/v1/models/%s", c.Endpoint, c.ModelName)
}

// Predict 实现 core.MLService 接口
func (c *TFServingClient) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	if req == nil || len(req.Instances) == 0 {
		return nil, fmt.Errorf("instances are required")
	}

	body := map[string]any{"instances": req.Instances}
	if c.SignatureName != "" {
		body["signature_name"] = c.SignatureName
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.modelURL()+":predict", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.addAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tf serving error: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}

	var result struct {
		Predictions []json.RawMessage `json:"predictions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Predictions) != len(req.Instances) {
		return nil, fmt.Errorf("tf serving returned %d predictions for %d instances",
			len(result.Predictions), len(req.Instances))
	}

	predictions := make([]float32, 0, len(result.Predictions))
	for i, raw := range result.Predictions {
		v, err := decodePrediction(raw)
		if err != nil {
			return nil, fmt.Errorf("prediction %d: %w", i, err)
		}
		predictions = append(predictions, v)
	}

	return &core.MLPredictResponse{
		Predictions:  predictions,
		ModelVersion: c.ModelVersion,
	}, nil
}

// decodePrediction 兼容标量 y 与单元素数组 [y] 两种输出形状
func decodePrediction(raw json.RawMessage) (float32, error) {
	var scalar float32
	if err := json.Unmarshal(raw, &scalar); err == nil {
		return scalar, nil
	}
	var arr []float32
	if err := json.Unmarshal(raw, &arr); err != nil {
		return 0, fmt.Errorf("unexpected prediction %s", string(raw))
	}
	if len(arr) == 0 {
		return 0, fmt.Errorf("empty prediction")
	}
	return arr[0], nil
}

// addAuth 添加认证信息到 HTTP 请求
func (c *TFServingClient) addAuth(req *http.Request) {
	if c.Auth == nil {
		return
	}

	switch c.Auth.Type {
	case "basic":
		req.SetBasicAuth(c.Auth.Username, c.Auth.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+c.Auth.Token)
	case "api_key":
		req.Header.Set("X-API-Key", c.Auth.APIKey)
	}
}

// Health 健康检查
func (c *TFServingClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.modelURL(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.addAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("health check failed: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// Close HTTP 客户端不需要显式关闭
func (c *TFServingClient) Close(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// 确保 TFServingClient 实现了 core.MLService 接口
var _ core.MLService = (*TFServingClient)(nil)
