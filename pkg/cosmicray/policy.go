package cosmicray

import (
	"github.com/pkg/errors"

	"starmeasure/pkg/errkind"
)

// Policy holds the tuning parameters of the cosmic-ray detector.
type Policy struct {
	// EPerDN is the detector gain in electrons per data number. Must be
	// positive.
	EPerDN float64 `yaml:"e_per_dn"`
	// MinSigma is the detection threshold in units of sky sigma above
	// the local neighbor means. A negative value is read as a raw DN
	// floor of |MinSigma| instead.
	MinSigma float64 `yaml:"min_sigma"`
	// MinE is the minimum total charge, in electrons, for a candidate
	// to be retained.
	MinE float64 `yaml:"min_e"`
	// Cond3Fac scales the noise floor in the directional-contrast test.
	Cond3Fac float64 `yaml:"cond3_fac"`
	// Cond3Fac2 scales the PSF profile values that set the directional
	// thresholds.
	Cond3Fac2 float64 `yaml:"cond3_fac2"`
	// NIteration is the number of growth passes run after the initial
	// detection sweep.
	NIteration int `yaml:"niteration"`
}

// DefaultPolicy returns the standard detection parameters.
func DefaultPolicy() Policy {
	return Policy{
		EPerDN:     1.0,
		MinSigma:   6.0,
		MinE:       150.0,
		Cond3Fac:   2.5,
		Cond3Fac2:  0.6,
		NIteration: 3,
	}
}

// Validate checks the policy's preconditions.
func (p Policy) Validate() error {
	if p.EPerDN <= 0 {
		return errors.Wrapf(errkind.ErrInvalidArgument, "e_per_dn %g must be positive", p.EPerDN)
	}
	if p.NIteration < 0 {
		return errors.Wrapf(errkind.ErrInvalidArgument, "niteration %d must be non-negative", p.NIteration)
	}
	return nil
}
