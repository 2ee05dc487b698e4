// Package agents models the operator population: profiles, slashing, exit,
// entry, scripted shocks, and the seasonal reputation ledger.
package agents

import "meshnet-sim/internal/domain"

// Operator is one infrastructure operator. Identity is the integer ID.
// Once inactive an operator is never reactivated.
type Operator struct {
	ID            int
	Profile       domain.Profile
	Stake         float64
	Uptime        float64
	FraudProb     float64
	ExitThreshold float64 // x opportunity cost
	Reputation    float64 // settled up to LastSeason
	LastSeason    int
	SeasonsActive int
	Active        bool
}

// Whale is a large passive token holder, tracked for governance capture
// analysis only.
type Whale struct {
	ID         int
	Balance    float64
	Reputation float64
}
