package domain

import (
	"fmt"
	"math"
)

// Profile is the behavioral class of an operator.
type Profile uint8

// Operator profiles.
const (
	ProfileHighCommitment Profile = iota
	ProfileCasual
	ProfileMercenary
)

// Profiles lists all profiles in table order.
var Profiles = []Profile{ProfileHighCommitment, ProfileCasual, ProfileMercenary}

func (p Profile) String() string {
	switch p {
	case ProfileHighCommitment:
		return "high_commitment"
	case ProfileCasual:
		return "casual"
	case ProfileMercenary:
		return "mercenary"
	default:
		return fmt.Sprintf("profile(%d)", uint8(p))
	}
}

// ParseProfile is the inverse of Profile.String.
func ParseProfile(name string) (Profile, error) {
	for _, p := range Profiles {
		if p.String() == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown profile %q", ErrInvalidConfig, name)
}

// ProfileParams are the per-profile behavioral constants.
type ProfileParams struct {
	ExitThreshold float64 `yaml:"exit_threshold" json:"exit_threshold"` // x opportunity cost
	UptimeBase    float64 `yaml:"uptime_base" json:"uptime_base"`
	FraudProb     float64 `yaml:"fraud_prob" json:"fraud_prob"` // daily fraud attempt probability
}

// ProfileTable maps each profile to its parameters.
type ProfileTable map[Profile]ProfileParams

// DefaultProfileTable returns the reference parameters.
func DefaultProfileTable() ProfileTable {
	return ProfileTable{
		ProfileHighCommitment: {ExitThreshold: 0.3, UptimeBase: 0.995, FraudProb: 0.0},
		ProfileCasual:         {ExitThreshold: 0.8, UptimeBase: 0.95, FraudProb: 0.0},
		ProfileMercenary:      {ExitThreshold: 1.2, UptimeBase: 0.85, FraudProb: 0.15},
	}
}

// ProfileMix holds weights over profiles; weights must sum to 1.
type ProfileMix struct {
	HighCommitment float64 `yaml:"high_commitment" json:"high_commitment"`
	Casual         float64 `yaml:"casual" json:"casual"`
	Mercenary      float64 `yaml:"mercenary" json:"mercenary"`
}

// DefaultInitialMix is the initial population composition.
func DefaultInitialMix() ProfileMix {
	return ProfileMix{HighCommitment: 0.40, Casual: 0.45, Mercenary: 0.15}
}

// DefaultEntrantMix is the composition of new entrants.
func DefaultEntrantMix() ProfileMix {
	return ProfileMix{HighCommitment: 0.50, Casual: 0.35, Mercenary: 0.15}
}

// Weight returns the weight of one profile.
func (m ProfileMix) Weight(p Profile) float64 {
	switch p {
	case ProfileHighCommitment:
		return m.HighCommitment
	case ProfileCasual:
		return m.Casual
	case ProfileMercenary:
		return m.Mercenary
	}
	return 0
}

// mixTolerance bounds rounding error in user-supplied weights.
const mixTolerance = 1e-9

// Validate checks weights are non-negative and sum to 1.
func (m ProfileMix) Validate() error {
	sum := 0.0
	for _, p := range Profiles {
		w := m.Weight(p)
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("%w: profile mix weight for %s is %v", ErrInvalidConfig, p, w)
		}
		sum += w
	}
	if math.Abs(sum-1) > mixTolerance {
		return fmt.Errorf("%w: profile mix weights sum to %.6f, want 1", ErrInvalidConfig, sum)
	}
	return nil
}

// Validate checks each profile has sane parameters.
func (t ProfileTable) Validate() error {
	for _, p := range Profiles {
		params, ok := t[p]
		if !ok {
			return fmt.Errorf("%w: missing parameters for profile %s", ErrInvalidConfig, p)
		}
		if params.UptimeBase <= 0 || params.UptimeBase > 1 {
			return fmt.Errorf("%w: %s uptime base %.3f out of (0, 1]", ErrInvalidConfig, p, params.UptimeBase)
		}
		if params.FraudProb < 0 || params.FraudProb > 1 {
			return fmt.Errorf("%w: %s fraud probability %.3f out of [0, 1]", ErrInvalidConfig, p, params.FraudProb)
		}
		if params.ExitThreshold < 0 {
			return fmt.Errorf("%w: %s exit threshold is negative", ErrInvalidConfig, p)
		}
	}
	return nil
}
