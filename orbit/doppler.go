package orbit

// dopplerShiftHz computes the non-relativistic Doppler shift Δf = f₀·v_los/c
// for a satellite state seen from the observer. The observer's own velocity
// due to Earth rotation is removed from the relative velocity before
// projecting onto the line of sight. Positive shift means receding.
func dopplerShiftHz(obs Observer, pos, vel Vec3, carrierGHz float64) float64 {
	los := pos.Sub(obs.ecef)
	r := los.Norm()
	if r < 1 {
		return 0
	}

	u := Vec3{X: los.X / r, Y: los.Y / r, Z: los.Z / r}

	obsVel := earthRotationVelocity(obs.LatDeg, obs.LonDeg)
	rel := vel.Sub(obsVel)

	losVelKmS := rel.Dot(u)

	carrierHz := carrierGHz * 1e9
	return carrierHz * losVelKmS / speedOfLightKmS
}
