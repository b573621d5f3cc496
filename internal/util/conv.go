package util

import (
	"math"
	"strconv"
)

// MustParseUint 将字符串转换为无符号整数，解析失败时返回 0
func MustParseUint(s string) uint {
	id, _ := strconv.ParseUint(s, 10, 32)
	return uint(id)
}

// RoundInt 四舍五入到整数（.5 远离零）
func RoundInt(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Round(f))
}

// Percent 返回 round(100 * part / whole)，whole 为 0 时返回 0
func Percent(part, whole float64) int {
	if whole == 0 {
		return 0
	}
	return RoundInt(100 * part / whole)
}
