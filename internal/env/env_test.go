package env

import (
	"math"
	"testing"
)

// --- Profiles ---

func TestDiurnalLoad_SumsToDailyTotal(t *testing.T) {
	load := DiurnalLoad(StepsPerDay)
	var sum float64
	for _, v := range load {
		sum += v
	}
	if math.Abs(sum-DailyLoadKWh) > 1e-9 {
		t.Errorf("expected daily load %f kWh, got %f", DailyLoadKWh, sum)
	}
}

func TestDiurnalLoad_EveningPeakDominates(t *testing.T) {
	load := DiurnalLoad(StepsPerDay)
	at := func(hour int) float64 { return load[hour*60/StepMinutes] }

	if at(19) <= at(12) || at(19) <= at(3) {
		t.Errorf("expected 19:00 peak above noon and night: 19h=%f 12h=%f 3h=%f",
			at(19), at(12), at(3))
	}
	if at(8) <= at(3) {
		t.Errorf("expected morning peak above night: 8h=%f 3h=%f", at(8), at(3))
	}
}

func TestClearSkyPV_NightIsZeroNoonPeaks(t *testing.T) {
	pv := ClearSkyPV(StepsPerDay)
	at := func(hour int) float64 { return pv[hour*60/StepMinutes] }

	if at(0) > 1e-6 {
		t.Errorf("expected ~zero PV at midnight, got %f", at(0))
	}
	noon := at(12)
	for i, v := range pv {
		if v > noon+1e-12 {
			t.Errorf("interval %d exceeds noon output: %f > %f", i, v, noon)
		}
	}
	// Noon output is the nameplate rating over one interval, derated.
	want := PVNameplateKW * float64(StepMinutes) / 60.0 * 0.5
	if math.Abs(noon-want) > 1e-9 {
		t.Errorf("expected noon output %f, got %f", want, noon)
	}
}

func TestEVCharging_DeliversRequestedEnergy(t *testing.T) {
	arrival := 19 * 60 / StepMinutes
	ev := EVCharging(StepsPerDay, arrival, 10)

	var sum float64
	for i, v := range ev {
		sum += v
		if i < arrival && v != 0 {
			t.Errorf("no charging before arrival, interval %d has %f", i, v)
		}
		if v > EVCircuitKW*float64(StepMinutes)/60.0+1e-12 {
			t.Errorf("interval %d exceeds circuit rating: %f", i, v)
		}
	}
	if math.Abs(sum-10) > 1e-9 {
		t.Errorf("expected 10 kWh delivered, got %f", sum)
	}
}

func TestEVCharging_TruncatedByHorizon(t *testing.T) {
	// Arriving near the end of the day leaves the session unfinished.
	arrival := StepsPerDay - 2
	ev := EVCharging(StepsPerDay, arrival, 10)

	var sum float64
	for _, v := range ev {
		sum += v
	}
	want := 2 * EVCircuitKW * float64(StepMinutes) / 60.0
	if math.Abs(sum-want) > 1e-9 {
		t.Errorf("expected %f kWh within the horizon, got %f", want, sum)
	}
}

// --- Battery ---

func TestBattery_ChargeStoresWithLosses(t *testing.T) {
	b := NewBattery()
	dtH := float64(StepMinutes) / 60.0

	res, err := b.Step(3, 0, dtH)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(res.ChargeKW-3) > 1e-9 {
		t.Errorf("expected full 3 kW charge, got %f", res.ChargeKW)
	}
	wantStored := 3 * dtH * math.Sqrt(BatteryEtaRT)
	if math.Abs(res.InStoredKWh-wantStored) > 1e-9 {
		t.Errorf("expected %f kWh stored, got %f", wantStored, res.InStoredKWh)
	}
	if res.LossKWh <= 0 {
		t.Errorf("charging must lose energy, got %f", res.LossKWh)
	}
	if res.SoC <= 0.5 {
		t.Errorf("SoC must rise from 0.5, got %f", res.SoC)
	}
}

func TestBattery_PowerClamped(t *testing.T) {
	b := NewBattery()
	res, err := b.Step(50, 0, 0.25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ChargeKW > BatteryPowerKW+1e-9 {
		t.Errorf("charge power must clamp to %f, got %f", BatteryPowerKW, res.ChargeKW)
	}
}

func TestBattery_DischargeStopsAtFloor(t *testing.T) {
	b := NewBattery()
	// Drain with large requests until the floor holds.
	for i := 0; i < 100; i++ {
		b.Step(0, BatteryPowerKW, 1)
	}
	if b.SoC < b.MinSoC-1e-9 {
		t.Errorf("SoC must never fall below the floor %f, got %f", b.MinSoC, b.SoC)
	}
	res, _ := b.Step(0, BatteryPowerKW, 1)
	if res.DischargeKW > 1e-9 {
		t.Errorf("empty battery must not discharge, got %f kW", res.DischargeKW)
	}
}

func TestBattery_FullStopsCharging(t *testing.T) {
	b := NewBattery()
	for i := 0; i < 100; i++ {
		b.Step(BatteryPowerKW, 0, 1)
	}
	if b.SoC > 1+1e-9 {
		t.Errorf("SoC must never exceed 1, got %f", b.SoC)
	}
	res, _ := b.Step(BatteryPowerKW, 0, 1)
	if res.InStoredKWh > 1e-9 {
		t.Errorf("full battery must not accept charge, got %f kWh", res.InStoredKWh)
	}
}

func TestBattery_RoundTripEfficiency(t *testing.T) {
	b := NewBattery()
	dtH := 1.0

	in, _ := b.Step(2, 0, dtH)
	out, _ := b.Step(0, 2*BatteryEtaRT, dtH) // ask for roughly what survives

	delivered := out.DischargeKW * dtH
	injected := in.ChargeKW * dtH
	eta := delivered / injected
	if eta > BatteryEtaRT+1e-6 {
		t.Errorf("round-trip efficiency %f exceeds rating %f", eta, BatteryEtaRT)
	}
}

func TestBattery_SimultaneousRequestResolved(t *testing.T) {
	b := NewBattery()
	res, err := b.Step(4, 2, 0.25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DischargeKW != 0 {
		t.Errorf("larger charge request must win, got discharge %f", res.DischargeKW)
	}
}

func TestBattery_NegativeRequestRejected(t *testing.T) {
	b := NewBattery()
	if _, err := b.Step(-1, 0, 0.25); err == nil {
		t.Error("expected error for negative power request")
	}
}
