package orbit

import "math"

// RadioProfile describes the downlink RF characteristics used by the RSRP
// estimator. Zero fields fall back to conservative defaults when the profile
// is normalised, so a partially filled profile is usable.
type RadioProfile struct {
	EIRPDBm              float64
	UEGainDBi            float64
	PolarizationLossDB   float64
	ImplementationLossDB float64

	// Subcarriers spreads the received carrier power into a per-resource-
	// element RSRP figure. 20 MHz / 100 RB gives the 1200 default.
	Subcarriers int

	// The UE antenna pattern peaks at OptimalElevationDeg and rolls off
	// parabolically with BeamwidthDeg as the half-power width.
	OptimalElevationDeg float64
	BeamwidthDeg        float64
}

// DefaultRadioProfile returns the profile the estimator assumes when fields
// are left zero.
func DefaultRadioProfile() RadioProfile {
	return RadioProfile{
		EIRPDBm:              78.0,
		UEGainDBi:            25.0,
		PolarizationLossDB:   0.5,
		ImplementationLossDB: 2.0,
		Subcarriers:          1200,
		OptimalElevationDeg:  90.0,
		BeamwidthDeg:         120.0,
	}
}

func (p RadioProfile) normalized() RadioProfile {
	def := DefaultRadioProfile()
	if p.EIRPDBm == 0 {
		p.EIRPDBm = def.EIRPDBm
	}
	if p.UEGainDBi == 0 {
		p.UEGainDBi = def.UEGainDBi
	}
	if p.PolarizationLossDB == 0 {
		p.PolarizationLossDB = def.PolarizationLossDB
	}
	if p.ImplementationLossDB == 0 {
		p.ImplementationLossDB = def.ImplementationLossDB
	}
	if p.Subcarriers <= 0 {
		p.Subcarriers = def.Subcarriers
	}
	if p.OptimalElevationDeg == 0 {
		p.OptimalElevationDeg = def.OptimalElevationDeg
	}
	if p.BeamwidthDeg <= 0 {
		p.BeamwidthDeg = def.BeamwidthDeg
	}
	return p
}

// EstimateRSRP computes the per-resource-element received power in dBm for a
// satellite at the given slant range and elevation.
//
// The budget combines free-space path loss, an elevation-dependent
// atmospheric loss curve, and the UE antenna pattern:
//
//	received = EIRP + gain(el) - FSPL - atmos(el) - polarization - implementation
//	RSRP     = received - 10*log10(subcarriers)
func EstimateRSRP(profile RadioProfile, rangeKm, elevationDeg, carrierGHz float64) float64 {
	p := profile.normalized()

	if rangeKm <= 0 || carrierGHz <= 0 {
		return math.Inf(-1)
	}

	fspl := 92.45 + 20*math.Log10(rangeKm) + 20*math.Log10(carrierGHz)

	gain := p.UEGainDBi - patternLossDB(elevationDeg, p.OptimalElevationDeg, p.BeamwidthDeg)

	received := p.EIRPDBm + gain - fspl - atmosphericLossDB(elevationDeg) -
		p.PolarizationLossDB - p.ImplementationLossDB

	return received - 10*math.Log10(float64(p.Subcarriers))
}

// atmosphericLossDB approximates total atmospheric attenuation for a slant
// path at the given elevation: a piecewise gaseous-attenuation curve plus
// water-vapour and oxygen terms.
func atmosphericLossDB(elevationDeg float64) float64 {
	var loss float64
	switch {
	case elevationDeg < 5.0:
		el := elevationDeg
		if el < 0.5 {
			el = 0.5 // keep the cosecant term bounded near the horizon
		}
		loss = 0.8 / math.Sin(el*math.Pi/180)
	case elevationDeg < 10.0:
		loss = 0.6 + 0.2*(10.0-elevationDeg)/5.0
	case elevationDeg < 30.0:
		loss = 0.3 + 0.3*(30.0-elevationDeg)/20.0
	default:
		loss = 0.3
	}

	waterVapor := 0.1
	if elevationDeg < 20.0 {
		waterVapor = 0.2
	}
	const oxygen = 0.1

	return loss + waterVapor + oxygen
}

// patternLossDB is the parabolic antenna pattern roll-off relative to the
// peak, capped at 30 dB.
func patternLossDB(elevationDeg, optimalDeg, beamwidthDeg float64) float64 {
	off := (optimalDeg - elevationDeg) / beamwidthDeg
	loss := 12 * off * off
	if loss > 30 {
		loss = 30
	}
	return loss
}
