package settlement

import (
	"github.com/shopspring/decimal"
	"github.com/zjoart/go-paystack-settlement/pkg/config"
)

var hundred = decimal.NewFromInt(100)

// Breakdown splits a main-balance payment: Net is credited to the merchant's
// available balance and Held is parked in their pending balance.
type Breakdown struct {
	Gross int64
	Fee   int64
	Held  int64
	Net   int64
}

// ComputeBreakdown applies the platform fee (rounded half away from zero,
// capped at PlatformFeeMax when set) and then the settlement percentage to
// what remains.
func ComputeBreakdown(gross int64, cfg config.Settlement) Breakdown {
	if gross <= 0 {
		return Breakdown{Gross: gross}
	}

	g := decimal.NewFromInt(gross)
	fee := g.Mul(cfg.PlatformFeePercentage).Div(hundred).Round(0).IntPart()
	if cfg.PlatformFeeMax > 0 && fee > cfg.PlatformFeeMax {
		fee = cfg.PlatformFeeMax
	}

	afterFee := gross - fee
	held := decimal.NewFromInt(afterFee).Mul(hundred.Sub(cfg.SettlementPercentage)).Div(hundred).Round(0).IntPart()

	return Breakdown{
		Gross: gross,
		Fee:   fee,
		Held:  held,
		Net:   afterFee - held,
	}
}
