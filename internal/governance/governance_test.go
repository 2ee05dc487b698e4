package governance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVotingPower(t *testing.T) {
	assert.Equal(t, 100.0, VotingPower(100, 0, PowerFormula(2)))
	assert.Equal(t, 900.0, VotingPower(100, 2, PowerFormula(2)))
	assert.InDelta(t, 100*(1+math.Log(3)), VotingPower(100, 2, LogFormula()), 1e-12)
}

func TestConcentration_Equal(t *testing.T) {
	holders := make([]Holder, 100)
	for i := range holders {
		holders[i] = Holder{Balance: 1000, Reputation: 1}
	}

	r := Concentration(holders, PowerFormula(2), 1e9)
	assert.InDelta(t, 0, r.Gini, 1e-9)
	assert.InDelta(t, 0.01, r.HHI, 1e-12)
	assert.InDelta(t, 0.01, r.Top1Share, 1e-12)
	assert.InDelta(t, 0.10, r.Top10Share, 1e-12)
	assert.Equal(t, 100, r.Holders)

	whale := 0.2e9
	assert.InDelta(t, whale/(whale+100*4000), r.WhaleCaptureShare, 1e-12)
}

func TestConcentration_SingleDominant(t *testing.T) {
	holders := []Holder{{Balance: 1}, {Balance: 1}, {Balance: 1}, {Balance: 997}}

	r := Concentration(holders, PowerFormula(1), 0)
	assert.InDelta(t, 0.997, r.Top1Share, 1e-12)
	assert.Greater(t, r.Gini, 0.7)
	assert.Equal(t, 0.0, r.WhaleCaptureShare)
}

func TestConcentration_Empty(t *testing.T) {
	r := Concentration(nil, PowerFormula(2), 1e9)
	assert.Equal(t, 0, r.Holders)
	assert.Equal(t, 1.0, r.WhaleCaptureShare)
	assert.Equal(t, 0.0, r.Gini)
}

func TestExponentSweep_ReputationAmplifiesConcentration(t *testing.T) {
	holders := []Holder{
		{Balance: 10000, Reputation: 5},
		{Balance: 10000, Reputation: 0},
		{Balance: 10000, Reputation: 0},
		{Balance: 10000, Reputation: 0},
	}

	reports := ExponentSweep(holders, DefaultSweepFormulas(), 1e9)
	require.Len(t, reports, 6)
	assert.Equal(t, "p=0.5", reports[0].Formula)
	assert.Equal(t, "log", reports[5].Formula)

	for i := 1; i < 5; i++ {
		assert.Greater(t, reports[i].Gini, reports[i-1].Gini, reports[i].Formula)
		assert.Less(t, reports[i].WhaleCaptureShare, reports[i-1].WhaleCaptureShare, reports[i].Formula)
	}
}
