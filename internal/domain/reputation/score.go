// Package reputation вычисляет композитную репутацию пользователя 0..100
// из опыта, числа завершённых обменов и числа подписчиков.
package reputation

import (
	"context"
	"math"
)

// Пороги нормализации: значение выше порога засчитывается как 1.0.
const (
	XPCap        = 5000
	TradesCap    = 100
	FollowersCap = 1000
)

// Веса компонентов. Сумма равна 1.
const (
	XPWeight        = 0.5
	TradesWeight    = 0.3
	FollowersWeight = 0.2
)

// MaxScore - верхняя граница оценки.
const MaxScore = 100

// Inputs - исходные данные для расчёта.
type Inputs struct {
	XP        float64
	Trades    int
	Followers int
}

// Breakdown - нормализованные компоненты и итоговая оценка.
type Breakdown struct {
	XPNorm        float64 `json:"xpNorm"`
	TradesNorm    float64 `json:"tradesNorm"`
	FollowersNorm float64 `json:"followersNorm"`
	Score         int     `json:"score"`
}

// Normalize приводит значение к [0, 1] относительно порога.
func Normalize(value, ceiling float64) float64 {
	if ceiling <= 0 || value <= 0 || math.IsNaN(value) {
		return 0
	}
	return math.Min(value/ceiling, 1)
}

// Compute считает оценку:
// round(100 × (0.5×xpNorm + 0.3×tradesNorm + 0.2×followersNorm)).
func Compute(in Inputs) Breakdown {
	b := Breakdown{
		XPNorm:        Normalize(in.XP, XPCap),
		TradesNorm:    Normalize(float64(in.Trades), TradesCap),
		FollowersNorm: Normalize(float64(in.Followers), FollowersCap),
	}
	raw := MaxScore * (XPWeight*b.XPNorm + TradesWeight*b.TradesNorm + FollowersWeight*b.FollowersNorm)
	b.Score = int(math.Round(raw))
	if b.Score > MaxScore {
		b.Score = MaxScore
	}
	if b.Score < 0 {
		b.Score = 0
	}
	return b
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// XPSource возвращает суммарный опыт пользователя (только чтение).
type XPSource interface {
	GetTotalXP(ctx context.Context, userID string) (float64, error)
}

// TradeCounter считает завершённые обмены, где пользователь был
// создателем или участником.
type TradeCounter interface {
	CountTradesInvolving(ctx context.Context, userID string) (int, error)
}
