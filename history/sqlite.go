// Package history 持久化预测记录，用于观察模型在真实请求上的误差。
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rushteam/neuralcalc/core"
)

// Stats 是历史记录的汇总
type Stats struct {
	Count          int64    `json:"count"`
	WithActual     int64    `json:"with_actual"`
	MeanDifference *float64 `json:"mean_difference"`
	MaxDifference  *float64 `json:"max_difference"`
}

// SQLiteStore 基于 SQLite 的预测记录存储（纯 Go 驱动，无需 cgo）。
type SQLiteStore struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库文件。path 为 ":memory:" 时使用内存数据库。
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// 内存库每个连接都是独立的数据库，写入与读取必须落在同一连接上
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			expression TEXT NOT NULL,
			prediction REAL NOT NULL,
			actual REAL,
			difference REAL,
			model_version TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("init history schema: %w", err)
		}
	}
	return nil
}

// Record 实现 core.PredictionRecorder
func (s *SQLiteStore) Record(ctx context.Context, rec *core.PredictionRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions (expression, prediction, actual, difference, model_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Expression, rec.Prediction, nullFloat(rec.Actual), nullFloat(rec.Difference),
		rec.ModelVersion, createdAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

// Recent 返回最近的 limit 条记录，按时间倒序
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*core.PredictionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT expression, prediction, actual, difference, model_version, created_at
		 FROM predictions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []*core.PredictionRecord
	for rows.Next() {
		var (
			rec        core.PredictionRecord
			actual     sql.NullFloat64
			difference sql.NullFloat64
			version    sql.NullString
			createdAt  int64
		)
		if err := rows.Scan(&rec.Expression, &rec.Prediction, &actual, &difference, &version, &createdAt); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		rec.Actual = floatPtr(actual)
		rec.Difference = floatPtr(difference)
		rec.ModelVersion = version.String
		rec.CreatedAt = time.Unix(0, createdAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Stats 汇总所有记录的误差
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var (
		st      Stats
		meanDif sql.NullFloat64
		maxDif  sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(difference), AVG(difference), MAX(difference) FROM predictions`,
	).Scan(&st.Count, &st.WithActual, &meanDif, &maxDif)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	st.MeanDifference = floatPtr(meanDif)
	st.MaxDifference = floatPtr(maxDif)
	return &st, nil
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var _ core.PredictionRecorder = (*SQLiteStore)(nil)
