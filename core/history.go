package core

import (
	"context"
	"time"
)

// PredictionRecord 是一次成功预测的记录，用于离线评估模型误差。
// 只保存表达式与结果，不保存特征向量。
type PredictionRecord struct {
	Expression   string    `json:"expression"`
	Prediction   float64   `json:"result"`
	Actual       *float64  `json:"actual"`
	Difference   *float64  `json:"difference"`
	ModelVersion string    `json:"model_version,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// PredictionRecorder 记录预测结果。
//
// 实现：
//   - history.SQLiteStore 实现此接口
type PredictionRecorder interface {
	Record(ctx context.Context, rec *PredictionRecord) error
}
