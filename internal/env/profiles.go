// Package env generates the household energy environment that shapes
// agent quotes: diurnal load, clear-sky PV, EV charging sessions, and a
// home battery. Profiles are physical simulation inputs and use float64;
// values are converted to decimal only when they become quoted
// quantities at the market boundary.
package env

import "math"

// Profile defaults, per the reference household.
const (
	StepMinutes     = 5
	DayMinutes      = 24 * 60
	DailyLoadKWh    = 30.0
	PVNameplateKW   = 7.4
	EVCircuitKW     = 7.2
	RetailPriceCkWh = 16.3
)

// StepsPerDay is the number of 5-minute intervals in one day.
const StepsPerDay = DayMinutes / StepMinutes

// DiurnalLoad returns household consumption in kWh per interval for one
// day, with morning (08:00) and evening (19:00) peaks, scaled to
// DailyLoadKWh.
func DiurnalLoad(steps int) []float64 {
	if steps <= 0 {
		steps = StepsPerDay
	}
	base := make([]float64, steps)
	var sum float64
	for i := range base {
		t := float64(i*StepMinutes) / 60.0
		morning := math.Exp(-((t - 8.0) * (t - 8.0)) / 6.0)
		evening := math.Exp(-((t - 19.0) * (t - 19.0)) / 6.0)
		base[i] = 0.3 + 0.5*morning + 0.7*evening
		sum += base[i]
	}
	scale := DailyLoadKWh / sum
	for i := range base {
		base[i] *= scale
	}
	return base
}

// ClearSkyPV returns PV production in kWh per interval for one day: a
// single bell centered at noon for a PVNameplateKW array.
func ClearSkyPV(steps int) []float64 {
	if steps <= 0 {
		steps = StepsPerDay
	}
	dtH := float64(StepMinutes) / 60.0
	out := make([]float64, steps)
	for i := range out {
		t := float64(i*StepMinutes) / 60.0
		bell := math.Exp(-((t - 12.0) * (t - 12.0)) / 8.0)
		out[i] = math.Max(0, bell) * PVNameplateKW * dtH * 0.5
	}
	return out
}

// EVCharging returns an EV charging session in kWh per interval: the
// vehicle arrives at arrivalStep and draws EVCircuitKW until energyKWh
// has been delivered or the horizon ends.
func EVCharging(steps, arrivalStep int, energyKWh float64) []float64 {
	if steps <= 0 {
		steps = StepsPerDay
	}
	dtH := float64(StepMinutes) / 60.0
	out := make([]float64, steps)
	remaining := math.Max(0, energyKWh)
	for i := arrivalStep; i < steps && remaining > 0; i++ {
		deliver := math.Min(EVCircuitKW*dtH, remaining)
		out[i] = deliver
		remaining -= deliver
	}
	return out
}
