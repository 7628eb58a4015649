package dedup

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// keyPrecision is the decimal places kept when comparing prices and strikes
const keyPrecision = 8

// Deduplicate collapses actionable signals with the same target, type and params.
// The winner of a group has the highest confidence, then the highest instance
// priority, then the smallest instance id. Groups keep first-occurrence order.
// NO_TRADE signals are dropped.
// ⭐ SSOT: 시그널 중복 제거는 여기서만
func Deduplicate(signals []contracts.Signal, priority map[string]int) []contracts.Signal {
	index := make(map[string]int)
	out := make([]contracts.Signal, 0, len(signals))

	for _, sig := range signals {
		if !sig.SignalType.IsActionable() {
			continue
		}

		key := Key(sig)
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, sig)
			continue
		}
		if better(sig, out[i], priority) {
			out[i] = sig
		}
	}

	return out
}

// better reports whether a beats b within a group
func better(a, b contracts.Signal, priority map[string]int) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	pa, pb := priority[a.InstanceID], priority[b.InstanceID]
	if pa != pb {
		return pa > pb
	}
	return a.InstanceID < b.InstanceID
}

// Key is the grouping key of a signal.
// Leg order does not matter; numbers are compared as decimals.
func Key(sig contracts.Signal) string {
	legs := make([]string, len(sig.Params.Legs))
	for i, l := range sig.Params.Legs {
		legs[i] = strings.Join([]string{
			l.Action,
			num(l.Contract.Strike),
			l.Contract.Right,
			l.Contract.Expiry,
			strconv.Itoa(l.Quantity),
			num(l.Price),
		}, ":")
	}
	sort.Strings(legs)

	return strings.Join([]string{
		sig.Target,
		string(sig.SignalType),
		strings.Join(legs, ","),
		num(sig.Params.MaxRisk),
		num(sig.Params.CapitalRequired),
	}, "|")
}

// num renders a float canonically, rounded to keyPrecision places
func num(f float64) string {
	return decimal.NewFromFloat(f).Round(keyPrecision).String()
}
