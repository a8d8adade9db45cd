package indicators

import (
	"time"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

// Signal directions.
const (
	SignalBuy     = "BUY"
	SignalSell    = "SELL"
	SignalNeutral = "NEUTRAL"
)

// FairValueGap is a three-candle imbalance: a gap between candle i-2's high
// and candle i's low (bullish) or between i-2's low and i's high (bearish).
type FairValueGap struct {
	Bullish bool      `json:"bullish"`
	Top     float64   `json:"top"`
	Bottom  float64   `json:"bottom"`
	Time    time.Time `json:"time"`
}

// SwingPoint marks a local extreme over its neighbours.
type SwingPoint struct {
	High  bool      `json:"high"`
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}

// Signal is the aggregate strategy output for a symbol.
type Signal struct {
	Symbol     string         `json:"symbol"`
	Direction  string         `json:"direction"`
	Confidence float64        `json:"confidence"`
	RSI        float64        `json:"rsi"`
	EMAFast    float64        `json:"ema_fast"`
	EMASlow    float64        `json:"ema_slow"`
	Gaps       []FairValueGap `json:"fair_value_gaps,omitempty"`
	Swings     []SwingPoint   `json:"swing_points,omitempty"`
	Reason     string         `json:"reason"`
}

// FairValueGaps scans candles for three-candle imbalances.
func FairValueGaps(candles []types.Candle) []FairValueGap {
	var gaps []FairValueGap
	for i := 2; i < len(candles); i++ {
		prev, cur := candles[i-2], candles[i]
		if cur.Low > prev.High {
			gaps = append(gaps, FairValueGap{
				Bullish: true,
				Top:     cur.Low,
				Bottom:  prev.High,
				Time:    candles[i-1].OpenTime,
			})
		}
		if cur.High < prev.Low {
			gaps = append(gaps, FairValueGap{
				Bullish: false,
				Top:     prev.Low,
				Bottom:  cur.High,
				Time:    candles[i-1].OpenTime,
			})
		}
	}
	return gaps
}

// SwingPoints finds local highs and lows with lookback candles on each side.
func SwingPoints(candles []types.Candle, lookback int) []SwingPoint {
	if lookback < 1 {
		lookback = 2
	}
	var swings []SwingPoint
	for i := lookback; i < len(candles)-lookback; i++ {
		isHigh, isLow := true, true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
		}
		if isHigh {
			swings = append(swings, SwingPoint{High: true, Price: candles[i].High, Time: candles[i].OpenTime})
		}
		if isLow {
			swings = append(swings, SwingPoint{High: false, Price: candles[i].Low, Time: candles[i].OpenTime})
		}
	}
	return swings
}

// Strategy parameters for Evaluate.
const (
	emaFastPeriod = 9
	emaSlowPeriod = 21
	rsiPeriod     = 14
	rsiOverbought = 70.0
	rsiOversold   = 30.0
)

// Evaluate combines EMA crossover, RSI extremes and gap structure into a
// single directional signal with a confidence score in [0,1].
func Evaluate(symbol string, candles []types.Candle) (*Signal, error) {
	if len(candles) < emaSlowPeriod+1 {
		return nil, ErrNotEnoughData
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	fast, err := EMA(closes, emaFastPeriod)
	if err != nil {
		return nil, err
	}
	slow, err := EMA(closes, emaSlowPeriod)
	if err != nil {
		return nil, err
	}
	rsi, err := RSI(closes, rsiPeriod)
	if err != nil {
		return nil, err
	}

	last := len(closes) - 1
	sig := &Signal{
		Symbol:  symbol,
		RSI:     rsi[last],
		EMAFast: fast[last],
		EMASlow: slow[last],
		Gaps:    FairValueGaps(candles),
		Swings:  SwingPoints(candles, 2),
	}

	score := 0.0
	if fast[last] > slow[last] {
		score += 0.4
	} else if fast[last] < slow[last] {
		score -= 0.4
	}

	switch {
	case rsi[last] < rsiOversold:
		score += 0.35
	case rsi[last] > rsiOverbought:
		score -= 0.35
	}

	// Unfilled gaps near the current price add conviction in their direction.
	price := closes[last]
	for _, g := range sig.Gaps {
		if price >= g.Bottom && price <= g.Top {
			if g.Bullish {
				score += 0.15
			} else {
				score -= 0.15
			}
		}
	}

	switch {
	case score >= 0.3:
		sig.Direction = SignalBuy
		sig.Reason = "fast EMA above slow with supportive RSI/structure"
	case score <= -0.3:
		sig.Direction = SignalSell
		sig.Reason = "fast EMA below slow with supportive RSI/structure"
	default:
		sig.Direction = SignalNeutral
		sig.Reason = "no directional confluence"
	}

	if score < 0 {
		score = -score
	}
	if score > 1 {
		score = 1
	}
	sig.Confidence = score

	return sig, nil
}
