package pipeline

import (
	"math"
	"strings"
)

// Params holds the parsed parameters of one chain entry.
type Params struct {
	ID   string
	Type string
	Num  map[string]float64
	Str  map[string]string
}

// GetNum returns a numeric parameter, or def if missing or not finite.
func (p Params) GetNum(key string, def float64) float64 {
	if p.Num == nil {
		return def
	}

	v, ok := p.Num[key]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}

	return v
}

// GetInt returns a numeric parameter truncated to int.
func (p Params) GetInt(key string, def int) int {
	return int(p.GetNum(key, float64(def)))
}

// GetBool returns a boolean parameter; JSON booleans are stored as 0 or 1.
func (p Params) GetBool(key string, def bool) bool {
	d := 0.0
	if def {
		d = 1
	}
	return p.GetNum(key, d) != 0
}

// GetStr returns a string parameter, or def if missing or blank.
func (p Params) GetStr(key, def string) string {
	if p.Str == nil {
		return def
	}

	v, ok := p.Str[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}

	return v
}
