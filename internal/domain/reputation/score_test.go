package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute_ReferenceScenario(t *testing.T) {
	b := Compute(Inputs{XP: 2500, Trades: 40, Followers: 300})

	assert.InDelta(t, 0.5, b.XPNorm, 1e-9)
	assert.InDelta(t, 0.4, b.TradesNorm, 1e-9)
	assert.InDelta(t, 0.3, b.FollowersNorm, 1e-9)
	assert.Equal(t, 43, b.Score)
}

func TestCompute_Bounds(t *testing.T) {
	tests := []struct {
		name string
		in   Inputs
		want int
	}{
		{"zero", Inputs{}, 0},
		{"negative inputs clamp to zero", Inputs{XP: -10, Trades: -1, Followers: -5}, 0},
		{"all caps", Inputs{XP: XPCap, Trades: TradesCap, Followers: FollowersCap}, 100},
		{"far above caps", Inputs{XP: 1e9, Trades: 1e6, Followers: 1e6}, 100},
		{"xp only", Inputs{XP: XPCap}, 50},
		{"trades only", Inputs{Trades: TradesCap}, 30},
		{"followers only", Inputs{Followers: FollowersCap}, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.in).Score)
		})
	}
}

func TestCompute_CapIsCeiling(t *testing.T) {
	at := Compute(Inputs{XP: 5000, Trades: 10, Followers: 10})
	above := Compute(Inputs{XP: 10000, Trades: 10, Followers: 10})
	assert.Equal(t, at.XPNorm, above.XPNorm)
	assert.Equal(t, at.Score, above.Score)
}

func TestCompute_Monotonic(t *testing.T) {
	for _, base := range []Inputs{{}, {XP: 1200, Trades: 7, Followers: 90}, {XP: 4999, Trades: 99, Followers: 999}} {
		prev := Compute(base).Score
		for step := 1; step <= 60; step++ {
			in := base
			in.XP += float64(step * 100)
			score := Compute(in).Score
			assert.GreaterOrEqual(t, score, prev)
			assert.LessOrEqual(t, score, MaxScore)
			prev = score
		}

		prev = Compute(base).Score
		for step := 1; step <= 60; step++ {
			in := base
			in.Trades += step
			score := Compute(in).Score
			assert.GreaterOrEqual(t, score, prev)
			prev = score
		}

		prev = Compute(base).Score
		for step := 1; step <= 60; step++ {
			in := base
			in.Followers += step * 20
			score := Compute(in).Score
			assert.GreaterOrEqual(t, score, prev)
			prev = score
		}
	}
}
