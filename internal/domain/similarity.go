package domain

import "math"

// SimilarityPercent переводит score (отрицательное скалярное произведение) в проценты: (1 - score) * 50.
// Результат ограничен [0, 100], NaN даёт 0.
func SimilarityPercent(score float64) float64 {
	pct := (1 - score) * 50
	switch {
	case math.IsNaN(pct):
		return 0
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

// Dot возвращает скалярное произведение. Векторы разной длины сравниваются по общей части.
func Dot(a, b []float32) float64 {
	n := min(len(a), len(b))

	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum
}

// L2Normalize возвращает копию вектора единичной длины. ok=false для нулевого вектора.
func L2Normalize(v []float32) ([]float32, bool) {
	norm := math.Sqrt(Dot(v, v))
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, false
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}

	return out, true
}

// IsNormalized проверяет, что длина вектора равна 1 с точностью eps.
func IsNormalized(v []float32, eps float64) bool {
	return math.Abs(math.Sqrt(Dot(v, v))-1) <= eps
}
