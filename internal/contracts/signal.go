package contracts

import "time"

// SignalType is the strategy recommended by an instance
type SignalType string

const (
	SignalNoTrade         SignalType = "NO_TRADE"
	SignalShortPutSpread  SignalType = "SHORT_PUT_SPREAD"
	SignalShortCallSpread SignalType = "SHORT_CALL_SPREAD"
	SignalIronCondor      SignalType = "IRON_CONDOR"
	SignalLongCallSpread  SignalType = "LONG_CALL_SPREAD"
	SignalLongPutSpread   SignalType = "LONG_PUT_SPREAD"
	SignalLongShortCombo  SignalType = "LONG_SHORT_COMBO"
	SignalShortLongCombo  SignalType = "SHORT_LONG_COMBO"
)

// AllSignalTypes returns the closed set of accepted signal types
func AllSignalTypes() []SignalType {
	return []SignalType{
		SignalNoTrade,
		SignalShortPutSpread,
		SignalShortCallSpread,
		SignalIronCondor,
		SignalLongCallSpread,
		SignalLongPutSpread,
		SignalLongShortCombo,
		SignalShortLongCombo,
	}
}

// IsActionable reports whether the signal carries a trade
func (t SignalType) IsActionable() bool {
	return t != SignalNoTrade
}

// Signal is a validated trading recommendation from one instance
// ⭐ SSOT: Normalizer → Dedup → 호출자 시그널 전달
type Signal struct {
	InstanceID   string       `json:"instance_id"`
	TemplateUsed string       `json:"template_used"`
	Target       string       `json:"target"`
	SignalType   SignalType   `json:"signal"`
	Params       SignalParams `json:"params"`
	Confidence   float64      `json:"confidence"` // 0.0 ~ 1.0
	Reasoning    string       `json:"reasoning"`
	Timestamp    time.Time    `json:"timestamp"`
}

// SignalParams describes the option structure of a signal
type SignalParams struct {
	Legs            []Leg   `json:"legs"`
	MaxRisk         float64 `json:"max_risk"`
	CapitalRequired float64 `json:"capital_required"`
}

// Leg is one option leg
type Leg struct {
	Action   string   `json:"action"` // SELL, BUY
	Contract Contract `json:"contract"`
	Quantity int      `json:"quantity"`
	Price    float64  `json:"price"`
}

// Contract identifies an option contract
type Contract struct {
	Strike float64 `json:"strike"`
	Right  string  `json:"right"`  // C, P
	Expiry string  `json:"expiry"` // YYYYMMDD
}
