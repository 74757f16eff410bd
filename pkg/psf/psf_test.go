package psf

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"starmeasure/pkg/errkind"
)

// TestRegistryDeclareLookup verifies factory registration and lookup
func TestRegistryDeclareLookup(t *testing.T) {
	r := NewRegistry()
	factory := func(width, height int, p0, p1, p2 float64) (Psf, error) {
		return NewDoubleGaussian(width, height, p0, p1, p2)
	}

	if err := r.Declare("gauss", factory); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}
	if err := r.Declare("gauss", factory); !errors.Is(err, errkind.ErrInvalidArgument) {
		t.Errorf("Expected invalid-argument for duplicate declaration, got %v", err)
	}
	if _, err := r.Lookup("gauss"); err != nil {
		t.Errorf("Lookup failed: %v", err)
	}
	if _, err := r.Lookup("unknown"); !errors.Is(err, errkind.ErrNotFound) {
		t.Errorf("Expected not-found for unknown name, got %v", err)
	}

	p, err := r.Create("gauss", 15, 15, 2, 0, 0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.Width() != 15 || p.Height() != 15 {
		t.Errorf("Expected 15x15 PSF, got %dx%d", p.Width(), p.Height())
	}
}

// TestDefaultRegistry verifies the bundled double-Gaussian factory
func TestDefaultRegistry(t *testing.T) {
	p, err := CreatePsf("DoubleGaussian", 15, 15, 1.5, 3.0, 0.1)
	if err != nil {
		t.Fatalf("CreatePsf failed: %v", err)
	}
	if got := p.Value(0, 0); math.Abs(got-1) > 1e-12 {
		t.Errorf("Expected unit peak, got %f", got)
	}
}

// TestDoubleGaussianValue verifies the two-component profile
func TestDoubleGaussianValue(t *testing.T) {
	p, err := NewDoubleGaussian(15, 15, 1, 2, 0.5)
	if err != nil {
		t.Fatalf("NewDoubleGaussian failed: %v", err)
	}

	// At r=2: (exp(-2) + 0.5*exp(-0.5)) / 1.5
	want := (math.Exp(-2) + 0.5*math.Exp(-0.5)) / 1.5
	if got := p.Value(2, 0); math.Abs(got-want) > 1e-12 {
		t.Errorf("Expected %f at r=2, got %f", want, got)
	}
	if p.Value(0, 2) != p.Value(2, 0) {
		t.Error("Expected a circular profile")
	}
}

// TestDoubleGaussianBadSigma verifies the domain error on degenerate widths
func TestDoubleGaussianBadSigma(t *testing.T) {
	if _, err := NewDoubleGaussian(15, 15, 0, 1, 0.1); !errors.Is(err, errkind.ErrDomain) {
		t.Errorf("Expected domain error for sigma1=0, got %v", err)
	}
	// b=0 with sigma2=0 degenerates to a single Gaussian and is accepted.
	if _, err := NewDoubleGaussian(15, 15, 2, 0, 0); err != nil {
		t.Errorf("Expected single-Gaussian degenerate form accepted, got %v", err)
	}
}

// TestComputeImageCentering verifies the realized image peaks at the
// requested pixel with a unit sample
func TestComputeImageCentering(t *testing.T) {
	p, _ := NewDoubleGaussian(15, 15, 2, 0, 0)

	im, err := p.ComputeImage(100, 200)
	if err != nil {
		t.Fatalf("ComputeImage failed: %v", err)
	}
	if im.X0() != 93 || im.Y0() != 193 {
		t.Errorf("Expected origin (93,193), got (%d,%d)", im.X0(), im.Y0())
	}
	if got := im.At(7, 7); math.Abs(got-1) > 1e-12 {
		t.Errorf("Expected unit peak at the center pixel, got %f", got)
	}

	// A fractional position moves flux toward the neighboring pixel.
	im2, err := p.ComputeImage(100.4, 200)
	if err != nil {
		t.Fatalf("ComputeImage failed: %v", err)
	}
	if im2.At(8, 7) <= im2.At(6, 7) {
		t.Error("Expected the profile skewed toward the fractional offset")
	}
}

// TestAttributesGaussianMoments verifies the moment-based shape measures
// against their analytic values for a wide Gaussian
func TestAttributesGaussianMoments(t *testing.T) {
	sigma := 2.0
	p, _ := NewDoubleGaussian(21, 21, sigma, 0, 0)
	attr, err := NewAttributes(p, 50, 50)
	if err != nil {
		t.Fatalf("NewAttributes failed: %v", err)
	}

	width, err := attr.GaussianWidth()
	if err != nil {
		t.Fatalf("GaussianWidth failed: %v", err)
	}
	if math.Abs(width-sigma) > 0.05*sigma {
		t.Errorf("Expected Gaussian width near %f, got %f", sigma, width)
	}

	first, err := attr.FirstMoment()
	if err != nil {
		t.Fatalf("FirstMoment failed: %v", err)
	}
	wantFirst := sigma * math.Sqrt(math.Pi/2)
	if math.Abs(first-wantFirst) > 0.05*wantFirst {
		t.Errorf("Expected first moment near %f, got %f", wantFirst, first)
	}

	second, err := attr.SecondMoment()
	if err != nil {
		t.Fatalf("SecondMoment failed: %v", err)
	}
	wantSecond := sigma * math.Sqrt2
	if math.Abs(second-wantSecond) > 0.05*wantSecond {
		t.Errorf("Expected second moment near %f, got %f", wantSecond, second)
	}

	area, err := attr.EffectiveArea()
	if err != nil {
		t.Fatalf("EffectiveArea failed: %v", err)
	}
	wantArea := 4 * math.Pi * sigma * sigma
	if math.Abs(area-wantArea) > 0.05*wantArea {
		t.Errorf("Expected effective area near %f, got %f", wantArea, area)
	}
}
