package service

import (
	"context"
	"fmt"

	"github.com/rushteam/neuralcalc/core"
	"github.com/rushteam/neuralcalc/model"
)

// LocalMLService 在进程内执行模型推理。
// 模型在构造时加载一次，之后只读；Predict 可并发调用。
type LocalMLService struct {
	model   model.Model
	version string
}

// NewLocalMLService 包装一个已加载的模型
func NewLocalMLService(m model.Model, version string) (*LocalMLService, error) {
	if m == nil {
		return nil, core.ErrModelUnavailable
	}
	return &LocalMLService{model: m, version: version}, nil
}

// LoadLocalMLService 从权重文件加载 FNN，文件缺失时立即失败
func LoadLocalMLService(weightsPath, version string) (*LocalMLService, error) {
	m, err := model.LoadFNN(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", weightsPath, err)
	}
	return NewLocalMLService(m, version)
}

// Model 返回底层模型
func (s *LocalMLService) Model() model.Model { return s.model }

// Predict 实现 core.MLService 接口
func (s *LocalMLService) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	if req == nil || len(req.Instances) == 0 {
		return nil, fmt.Errorf("instances are required")
	}

	predictions := make([]float32, len(req.Instances))
	for i, x := range req.Instances {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		y, err := s.model.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
		predictions[i] = y
	}
	return &core.MLPredictResponse{Predictions: predictions, ModelVersion: s.version}, nil
}

// Health 本地模型加载成功即健康
func (s *LocalMLService) Health(ctx context.Context) error {
	return nil
}

func (s *LocalMLService) Close(ctx context.Context) error {
	return nil
}

var _ core.MLService = (*LocalMLService)(nil)
