package market

import "math"

const (
	priceDrift        = 0.0001
	priceTimeStep     = 1.0 / 144.0
	sentimentPullBase = 0.001
)

// NextPrice advances one instrument by one tick.
//
// The shock is (u-0.5)*2*sigma*sqrt(dt) with u uniform in [0,1): a bounded
// symmetric walk, not a Gaussian. sigma is the instrument volatility scaled
// by the market-wide volatility index.
func NextPrice(r Rand, oldPrice, volatility float64, st State) float64 {
	if volatility <= 0 {
		volatility = DefaultVolatility
	}
	sigma := volatility * st.VolatilityIndex
	shock := (r.Float64() - 0.5) * 2 * sigma * math.Sqrt(priceTimeStep)
	sentiment := st.Sentiment * sentimentPullBase
	return ClampPrice(oldPrice * (1 + priceDrift + shock + sentiment))
}

// PriceBand returns the inclusive range NextPrice can produce before
// rounding and flooring.
func PriceBand(oldPrice, volatility float64, st State) (lo, hi float64) {
	sigma := volatility * st.VolatilityIndex
	spread := sigma * math.Sqrt(priceTimeStep)
	base := 1 + priceDrift + st.Sentiment*sentimentPullBase
	return oldPrice * (base - spread), oldPrice * (base + spread)
}
