package service

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/rushteam/neuralcalc/core"
)

// CachedMLService 为 MLService 增加预测缓存。
//
// 同一特征向量的模型输出是确定的，因此以向量的原始字节为 key 缓存 float32 输出。
// 并发请求同一个未命中向量时，通过 singleflight 只调用一次底层模型。
//
// 缓存读写失败不影响预测：读失败按未命中处理，写失败只记录日志。
type CachedMLService struct {
	inner  core.MLService
	store  core.Store
	prefix string
	ttl    int
	group  singleflight.Group
	logger *slog.Logger

	// version 是全部命中缓存时返回的模型版本，初始值来自 WithCacheModelVersion，之后随每次推理更新
	version atomic.Value
}

// CacheOption 缓存配置选项
type CacheOption func(*CachedMLService)

// WithCacheTTL 设置缓存过期时间（秒），0 表示不过期
func WithCacheTTL(seconds int) CacheOption {
	return func(c *CachedMLService) {
		c.ttl = seconds
	}
}

// WithCachePrefix 设置 key 前缀，建议包含模型版本，避免换模型后读到旧结果
func WithCachePrefix(prefix string) CacheOption {
	return func(c *CachedMLService) {
		c.prefix = prefix
	}
}

// WithCacheModelVersion 设置模型版本，请求全部命中缓存时作为响应的 ModelVersion
func WithCacheModelVersion(version string) CacheOption {
	return func(c *CachedMLService) {
		c.version.Store(version)
	}
}

// WithCacheLogger 设置日志
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedMLService) {
		c.logger = logger
	}
}

// NewCachedMLService 创建带缓存的 MLService
func NewCachedMLService(inner core.MLService, store core.Store, opts ...CacheOption) *CachedMLService {
	c := &CachedMLService{
		inner:  inner,
		store:  store,
		prefix: "neuralcalc:pred:",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Predict 实现 core.MLService 接口
func (c *CachedMLService) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	if req == nil || len(req.Instances) == 0 {
		return nil, fmt.Errorf("instances are required")
	}

	keys := make([]string, len(req.Instances))
	for i, x := range req.Instances {
		keys[i] = c.cacheKey(x)
	}

	cached, err := c.store.BatchGet(ctx, keys)
	if err != nil {
		c.logger.WarnContext(ctx, "prediction cache read failed", "store", c.store.Name(), "error", err)
		cached = nil
	}

	predictions := make([]float32, len(req.Instances))
	var version string
	for i, key := range keys {
		if raw, ok := cached[key]; ok && len(raw) == 4 {
			predictions[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw))
			continue
		}
		y, v, err := c.predictOne(ctx, key, req, i)
		if err != nil {
			return nil, err
		}
		predictions[i] = y
		version = v
	}
	if version == "" {
		version, _ = c.version.Load().(string)
	}
	return &core.MLPredictResponse{Predictions: predictions, ModelVersion: version}, nil
}

type flightResult struct {
	y       float32
	version string
}

func (c *CachedMLService) predictOne(ctx context.Context, key string, req *core.MLPredictRequest, i int) (float32, string, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		resp, err := c.inner.Predict(ctx, &core.MLPredictRequest{
			Instances:    [][]float32{req.Instances[i]},
			ModelName:    req.ModelName,
			ModelVersion: req.ModelVersion,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Predictions) != 1 {
			return nil, fmt.Errorf("model returned %d predictions for 1 instance", len(resp.Predictions))
		}
		y := resp.Predictions[0]
		if resp.ModelVersion != "" {
			c.version.Store(resp.ModelVersion)
		}

		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(y))
		if err := c.store.Set(ctx, key, buf, c.ttl); err != nil {
			c.logger.WarnContext(ctx, "prediction cache write failed", "store", c.store.Name(), "error", err)
		}
		return flightResult{y: y, version: resp.ModelVersion}, nil
	})
	if err != nil {
		return 0, "", err
	}
	r := v.(flightResult)
	return r.y, r.version, nil
}

// cacheKey 用向量每个分量的 IEEE-754 位模式作为 key，保证精确匹配
func (c *CachedMLService) cacheKey(x []float32) string {
	buf := make([]byte, 4*len(x))
	for i, v := range x {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return c.prefix + hex.EncodeToString(buf)
}

// Health 只检查底层模型，缓存不可用不影响服务
func (c *CachedMLService) Health(ctx context.Context) error {
	return c.inner.Health(ctx)
}

// Close 关闭底层模型与缓存
func (c *CachedMLService) Close(ctx context.Context) error {
	err := c.inner.Close(ctx)
	if serr := c.store.Close(); serr != nil && err == nil {
		err = serr
	}
	return err
}

var _ core.MLService = (*CachedMLService)(nil)
