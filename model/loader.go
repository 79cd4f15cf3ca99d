package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// WeightsFile 是权重文件的结构（支持 JSON/YAML）。
//
// 由训练侧从 Keras 模型导出：
//
//	{
//	  "name": "fnn2",
//	  "input_dim": 15,
//	  "layers": [
//	    {"type": "dense", "kernel": [[...], ...], "bias": [...]},
//	    {"type": "prelu", "alpha": [...]},
//	    {"type": "dense", "kernel": [[...], ...], "bias": [...], "activation": "linear"}
//	  ]
//	}
type WeightsFile struct {
	Name     string        `yaml:"name" json:"name"`
	InputDim int           `yaml:"input_dim" json:"input_dim"`
	Layers   []LayerConfig `yaml:"layers" json:"layers"`
}

// LayerConfig 是单层的权重。
type LayerConfig struct {
	Type       string      `yaml:"type" json:"type"` // dense / prelu / relu
	Kernel     [][]float32 `yaml:"kernel,omitempty" json:"kernel,omitempty"`
	Bias       []float32   `yaml:"bias,omitempty" json:"bias,omitempty"`
	Alpha      []float32   `yaml:"alpha,omitempty" json:"alpha,omitempty"`
	Activation string      `yaml:"activation,omitempty" json:"activation,omitempty"`
}

// LoadFNN 从权重文件加载网络，按扩展名选择 YAML（.yaml/.yml）或 JSON。
// 文件缺失或维度不一致时直接返回错误。
func LoadFNN(path string) (*FNN, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}

	var wf WeightsFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &wf); err != nil {
			return nil, fmt.Errorf("parse yaml weights: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &wf); err != nil {
			return nil, fmt.Errorf("parse json weights: %w", err)
		}
	}
	return wf.Build()
}

// Build 根据权重构建网络
func (wf *WeightsFile) Build() (*FNN, error) {
	layers := make([]Layer, 0, len(wf.Layers))
	for i, lc := range wf.Layers {
		switch strings.ToLower(lc.Type) {
		case "dense":
			layers = append(layers, &Dense{Kernel: lc.Kernel, Bias: lc.Bias, Activation: lc.Activation})
		case "prelu":
			layers = append(layers, &PReLU{Alpha: lc.Alpha})
		case "relu":
			layers = append(layers, ReLU{})
		default:
			return nil, fmt.Errorf("layer %d: unknown type %q", i, lc.Type)
		}
	}
	return NewFNN(wf.Name, wf.InputDim, layers...)
}

// Export 把网络导出为权重结构（用于落盘/测试）
func Export(m *FNN) *WeightsFile {
	wf := &WeightsFile{Name: m.name, InputDim: m.inDim}
	for _, l := range m.Layers {
		switch v := l.(type) {
		case *Dense:
			wf.Layers = append(wf.Layers, LayerConfig{Type: "dense", Kernel: v.Kernel, Bias: v.Bias, Activation: v.Activation})
		case *PReLU:
			wf.Layers = append(wf.Layers, LayerConfig{Type: "prelu", Alpha: v.Alpha})
		case ReLU:
			wf.Layers = append(wf.Layers, LayerConfig{Type: "relu"})
		}
	}
	return wf
}
