package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/consult/internal/contracts"
)

func putSpread(id string, confidence float64) contracts.Signal {
	return contracts.Signal{
		InstanceID: id,
		Target:     "SPY",
		SignalType: contracts.SignalShortPutSpread,
		Confidence: confidence,
		Params: contracts.SignalParams{
			Legs: []contracts.Leg{
				{Action: "SELL", Contract: contracts.Contract{Strike: 540, Right: "P", Expiry: "20260116"}, Quantity: 1, Price: 2.35},
				{Action: "BUY", Contract: contracts.Contract{Strike: 535, Right: "P", Expiry: "20260116"}, Quantity: 1, Price: 1.6},
			},
			MaxRisk: 425,
		},
	}
}

func ids(signals []contracts.Signal) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = s.InstanceID
	}
	return out
}

func TestDeduplicate_KeepsHighestConfidence(t *testing.T) {
	out := Deduplicate([]contracts.Signal{
		putSpread("a", 0.6),
		putSpread("b", 0.8),
	}, nil)

	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].InstanceID)
	assert.Equal(t, 0.8, out[0].Confidence)
}

func TestDeduplicate_TieBreaks(t *testing.T) {
	tests := []struct {
		name     string
		priority map[string]int
		want     string
	}{
		{"higher priority wins", map[string]int{"a": 1, "b": 5}, "b"},
		{"smaller id on equal priority", map[string]int{"a": 3, "b": 3}, "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Deduplicate([]contracts.Signal{putSpread("b", 0.7), putSpread("a", 0.7)}, tt.priority)
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].InstanceID)
		})
	}
}

func TestDeduplicate_FirstOccurrenceOrder(t *testing.T) {
	qqq := putSpread("c", 0.5)
	qqq.Target = "QQQ"

	condor := putSpread("d", 0.5)
	condor.SignalType = contracts.SignalIronCondor

	noTrade := contracts.Signal{InstanceID: "e", SignalType: contracts.SignalNoTrade, Confidence: 1}

	out := Deduplicate([]contracts.Signal{
		putSpread("a", 0.4),
		qqq,
		noTrade,
		putSpread("b", 0.9), // SPY 그룹 승자, 첫 위치 유지
		condor,
	}, nil)

	assert.Equal(t, []string{"b", "c", "d"}, ids(out))
}

func TestKey(t *testing.T) {
	base := putSpread("a", 0.5)

	reordered := putSpread("b", 0.5)
	reordered.Params.Legs[0], reordered.Params.Legs[1] = reordered.Params.Legs[1], reordered.Params.Legs[0]
	assert.Equal(t, Key(base), Key(reordered), "leg order is irrelevant")

	noisy := putSpread("c", 0.5)
	noisy.Params.Legs[0].Price = 2.3500000000001
	assert.Equal(t, Key(base), Key(noisy), "float noise below precision is irrelevant")

	otherStrike := putSpread("d", 0.5)
	otherStrike.Params.Legs[0].Contract.Strike = 545
	assert.NotEqual(t, Key(base), Key(otherStrike))

	otherQty := putSpread("e", 0.5)
	otherQty.Params.Legs[1].Quantity = 2
	assert.NotEqual(t, Key(base), Key(otherQty))
}

func TestDeduplicate_Empty(t *testing.T) {
	assert.Empty(t, Deduplicate(nil, nil))
}
