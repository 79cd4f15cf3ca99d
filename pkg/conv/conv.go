// Package conv 提供数值转换小工具，用于简化各模块中的重复逻辑。
package conv

import (
	"math"
	"strconv"
)

// Round 按十进制保留 places 位小数。
// 通过格式化实现，舍入基于 v 的精确二进制值，避免 v*10^n 的中间误差。
func Round(v float64, places int) float64 {
	if !IsFinite(v) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// IsFinite 判断是否为有限值（非 NaN、非 ±Inf）
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Ptr 返回值的指针，便于构造可为 null 的 JSON 字段
func Ptr[T any](v T) *T {
	return &v
}
