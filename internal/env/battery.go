package env

import (
	"fmt"
	"math"
)

// Battery defaults, per the reference home storage unit.
const (
	BatteryCapacityKWh = 13.5
	BatteryPowerKW     = 5.0
	BatteryEtaRT       = 0.90
)

// Battery is a simple home storage model with symmetric charge and
// discharge efficiency (sqrt of the round-trip efficiency each way) and
// a minimum state-of-charge floor.
type Battery struct {
	CapacityKWh float64
	PowerKW     float64
	EtaRT       float64
	SoC         float64 // 0..1
	MinSoC      float64
}

// NewBattery creates a battery with the reference parameters at 50% SoC.
func NewBattery() *Battery {
	return &Battery{
		CapacityKWh: BatteryCapacityKWh,
		PowerKW:     BatteryPowerKW,
		EtaRT:       BatteryEtaRT,
		SoC:         0.5,
		MinSoC:      0.1,
	}
}

// StepResult reports what one interval of battery operation actually did
// after power/SoC limits and conversion losses.
type StepResult struct {
	ChargeKW     float64
	DischargeKW  float64
	InStoredKWh  float64 // energy added to storage
	OutStoredKWh float64 // storage depleted to serve discharge
	LossKWh      float64
	SoC          float64
}

// Step advances the battery one interval. Requested charge/discharge
// powers are clamped to the power rating and to SoC headroom; stored
// energy balance is exact. Simultaneous charge and discharge is
// resolved in favor of the larger request.
func (b *Battery) Step(chargeKW, dischargeKW, dtH float64) (StepResult, error) {
	if chargeKW < 0 || dischargeKW < 0 {
		return StepResult{}, fmt.Errorf("env: negative battery power request (charge=%f discharge=%f)", chargeKW, dischargeKW)
	}
	if chargeKW > 0 && dischargeKW > 0 {
		if chargeKW >= dischargeKW {
			dischargeKW = 0
		} else {
			chargeKW = 0
		}
	}
	chargeKW = math.Min(chargeKW, b.PowerKW)
	dischargeKW = math.Min(dischargeKW, b.PowerKW)

	etaChg := math.Sqrt(b.EtaRT)
	etaDis := math.Sqrt(b.EtaRT)

	stored := b.SoC * b.CapacityKWh

	// Charge limited by headroom.
	room := (1 - b.SoC) * b.CapacityKWh
	inStored := math.Min(chargeKW*dtH*etaChg, room)
	chargeActual := 0.0
	if dtH > 0 {
		chargeActual = inStored / (dtH * etaChg)
	}
	lossChg := chargeActual*dtH - inStored
	stored += inStored

	// Discharge limited by energy above the SoC floor.
	avail := math.Max(0, stored-b.MinSoC*b.CapacityKWh)
	outStored := math.Min(dischargeKW*dtH/etaDis, avail)
	dischargeActual := 0.0
	if dtH > 0 {
		dischargeActual = outStored * etaDis / dtH
	}
	lossDis := outStored - dischargeActual*dtH
	stored -= outStored

	b.SoC = math.Min(1, math.Max(b.MinSoC, stored/b.CapacityKWh))

	return StepResult{
		ChargeKW:     chargeActual,
		DischargeKW:  dischargeActual,
		InStoredKWh:  inStored,
		OutStoredKWh: outStored,
		LossKWh:      lossChg + lossDis,
		SoC:          b.SoC,
	}, nil
}
