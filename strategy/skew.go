package strategy

import "math"

// SkewTier |expo| <= MaxExposure 时使用 Multiplier 倍的步长。
type SkewTier struct {
	MaxExposure float64
	Multiplier  float64
}

// SkewTable 按 MaxExposure 升序排列，取第一个命中的档位。
type SkewTable []SkewTier

// NewSkewTable 死区 -> 0，0.40 -> 1，0.60 -> 2，其余 -> 3。
func NewSkewTable(deadband float64) SkewTable {
	return SkewTable{
		{MaxExposure: deadband, Multiplier: 0},
		{MaxExposure: 0.40, Multiplier: 1},
		{MaxExposure: 0.60, Multiplier: 2},
		{MaxExposure: math.Inf(1), Multiplier: 3},
	}
}

// Multiplier 返回 absExpo 对应的倍数。
func (t SkewTable) Multiplier(absExpo float64) float64 {
	for _, tier := range t {
		if absExpo <= tier.MaxExposure {
			return tier.Multiplier
		}
	}
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].Multiplier
}
