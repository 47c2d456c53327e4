package strategy

import (
	"errors"
	"fmt"

	"mxf-hedge-bot/internal/config"
)

var ErrRiskBelowMinimum = errors.New("risk index below minimum")

// Maximally safe risk index reported when there is no open position to
// require margin but equity is known to be positive.
const riskIndexNoPosition = 9999

const (
	RiskSourceReported = "reported"
	RiskSourceManual   = "manual"
	RiskSourceUnknown  = "unknown"
)

// RiskIndex resolves the account risk index used to gate order placement.
// A broker-reported value wins when positive; otherwise it is derived from
// manually configured equity against the margin the current position
// requires. Zero with source "unknown" means it could not be determined.
func RiskIndex(reported float64, currentPosition int, manualEquity, marginPerContract float64) (float64, string) {
	if reported > 0 {
		return reported, RiskSourceReported
	}
	marginRequired := float64(abs(currentPosition)) * marginPerContract
	if marginRequired > 0 && manualEquity > 0 {
		return manualEquity / marginRequired * 100, RiskSourceManual
	}
	if manualEquity > 0 {
		return riskIndexNoPosition, RiskSourceManual
	}
	return 0, RiskSourceUnknown
}

// CheckMargin decides whether a non-zero decision may be submitted. An
// undeterminable risk index does not block; only a known index below the
// configured minimum does.
func CheckMargin(reported float64, currentPosition int, cfg config.RiskConfig) error {
	risk, source := RiskIndex(reported, currentPosition, cfg.ManualEquity, cfg.MarginPerContract)
	if risk > 0 && risk < cfg.MinRiskLevel {
		return fmt.Errorf("risk index %.2f%% (%s) below %.2f%%: %w", risk, source, cfg.MinRiskLevel, ErrRiskBelowMinimum)
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
