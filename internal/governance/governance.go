// Package governance computes reputation-weighted voting power and the
// concentration of that power across holders. It is pure analysis: nothing
// here votes.
package governance

import (
	"fmt"
	"math"
	"sort"
)

// DefaultExponent is the reputation exponent in V = balance*(1+R)^p.
const DefaultExponent = 2.0

// WhaleSupplyShare is the fraction of total supply held by the hypothetical
// zero-reputation whale used for capture analysis.
const WhaleSupplyShare = 0.20

// Holder is one voting participant.
type Holder struct {
	Balance    float64
	Reputation float64
}

// Formula selects how reputation amplifies balance.
type Formula struct {
	Exponent float64 // used when Log is false
	Log      bool    // balance*(1+ln(1+R))
}

// PowerFormula returns the power-law formula with exponent p.
func PowerFormula(p float64) Formula {
	return Formula{Exponent: p}
}

// LogFormula returns the logarithmic formula.
func LogFormula() Formula {
	return Formula{Log: true}
}

// Name returns a short label, e.g. "p=2" or "log".
func (f Formula) Name() string {
	if f.Log {
		return "log"
	}
	return fmt.Sprintf("p=%g", f.Exponent)
}

// VotingPower returns the voting power of one holder.
func VotingPower(balance, reputation float64, f Formula) float64 {
	if f.Log {
		return balance * (1 + math.Log1p(reputation))
	}
	return balance * math.Pow(1+reputation, f.Exponent)
}

// Report is the concentration of voting power for one formula.
type Report struct {
	Formula           string  `json:"formula"`
	Holders           int     `json:"holders"`
	Gini              float64 `json:"gini"`
	HHI               float64 `json:"hhi"`
	Top1Share         float64 `json:"top_1pct_share"`
	Top10Share        float64 `json:"top_10pct_share"`
	WhaleCaptureShare float64 `json:"whale_capture_share"`
}

// Concentration computes the concentration report for holders under f.
// totalSupply sizes the hypothetical whale. An empty holder set yields a
// zero report with WhaleCaptureShare 1.
func Concentration(holders []Holder, f Formula, totalSupply float64) Report {
	r := Report{Formula: f.Name(), Holders: len(holders)}

	powers := make([]float64, len(holders))
	var total float64
	for i, h := range holders {
		powers[i] = VotingPower(h.Balance, h.Reputation, f)
		total += powers[i]
	}

	whale := VotingPower(totalSupply*WhaleSupplyShare, 0, f)
	if total+whale > 0 {
		r.WhaleCaptureShare = whale / (total + whale)
	}
	if len(holders) == 0 || total <= 0 {
		if len(holders) == 0 {
			r.WhaleCaptureShare = 1
		}
		return r
	}

	shares := make([]float64, len(powers))
	for i, v := range powers {
		shares[i] = v / total
	}
	sort.Float64s(shares)

	n := float64(len(shares))
	var cum, cumSum float64
	for _, s := range shares {
		cum += s
		cumSum += cum
		r.HHI += s * s
	}
	r.Gini = 1 - 2*cumSum/n + 1/n

	r.Top1Share = topShare(shares, 0.01)
	r.Top10Share = topShare(shares, 0.10)
	return r
}

// topShare sums the largest ceil(frac*n) shares. shares is sorted ascending.
func topShare(shares []float64, frac float64) float64 {
	k := int(math.Ceil(float64(len(shares)) * frac))
	k = max(1, min(k, len(shares)))
	var sum float64
	for _, s := range shares[len(shares)-k:] {
		sum += s
	}
	return sum
}

// DefaultSweepFormulas is the exponent grid {0.5,1,1.5,2,3} plus log.
func DefaultSweepFormulas() []Formula {
	return []Formula{
		PowerFormula(0.5),
		PowerFormula(1),
		PowerFormula(1.5),
		PowerFormula(2),
		PowerFormula(3),
		LogFormula(),
	}
}

// ExponentSweep evaluates Concentration for each formula in order.
func ExponentSweep(holders []Holder, formulas []Formula, totalSupply float64) []Report {
	out := make([]Report, 0, len(formulas))
	for _, f := range formulas {
		out = append(out, Concentration(holders, f, totalSupply))
	}
	return out
}
