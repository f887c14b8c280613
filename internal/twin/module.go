// Package twin estimates photovoltaic output power from the module's
// operating conditions.
package twin

import (
	"errors"
	"math"

	"github.com/speedwagon-io/solarbridge/internal/config"
)

const (
	referenceIrradiance  = 1000.0 // W/m²
	referenceTemperature = 25.0   // °C
	electronCharge       = 1.602e-19
	boltzmann            = 1.3806503e-23
)

var ErrNoEstimate = errors.New("estimate is not a finite number")

// Module holds the datasheet parameters of a PV module at reference
// conditions.
type Module struct {
	Voc0, Isc0, Vmp0, Imp0 float64
	AlphaV, AlphaI         float64
	CellsInSeries          int
}

func ModuleFromConfig(cfg config.TwinConfig) Module {
	return Module{
		Voc0:          cfg.Voc0,
		Isc0:          cfg.Isc0,
		Vmp0:          cfg.Vmp0,
		Imp0:          cfg.Imp0,
		AlphaV:        cfg.AlphaV,
		AlphaI:        cfg.AlphaI,
		CellsInSeries: cfg.CellsInSeries,
	}
}

// Current returns the module current in amperes at terminal voltage v,
// cell temperature t (°C) and irradiance g (W/m²). The I-V curve is
// approximated by a parabola above the maximum power point and by an
// inverse parabola below it.
func (m Module) Current(t, g, v float64) (float64, error) {
	g = math.Max(g, 0)

	vt := boltzmann * (t + 273.15) / electronCharge
	kv := m.Vmp0 / m.Voc0
	ki := m.Imp0 / m.Isc0

	voc := float64(m.CellsInSeries)*vt*math.Log(g/referenceIrradiance+1e-9) + m.Voc0*(1+m.AlphaV*(t-referenceTemperature))
	isc := m.Isc0 * g / referenceIrradiance * (1 + m.AlphaI*(t-referenceTemperature))
	imp := isc * ki
	vmp := voc * kv

	// both branches are evaluated; a degenerate curve (no light, isc == imp)
	// makes some coefficient non-finite and yields no estimate
	a := imp / math.Pow(voc-vmp, 2) * (voc/vmp - 2)
	b := -2*vmp*a - imp/vmp
	c := imp*voc/vmp - voc*imp*math.Pow(voc-2*vmp, 2)/(vmp*math.Pow(voc-vmp, 2))
	d := -vmp * (2*imp - isc) / (imp * math.Pow(imp-isc, 2))
	e := 2*vmp*(2*imp-isc)/math.Pow(imp-isc, 2) - vmp/imp
	f := vmp * isc * (2*isc - 3*imp) / math.Pow(imp-isc, 2)

	if isc == imp || d == 0 || !finite(a, b, c, d, e, f) {
		return 0, ErrNoEstimate
	}

	above := a*v*v + b*v + c
	below := (-e - math.Sqrt(math.Max(e*e-4*d*(f-v), 0))) / (2 * d)

	// unit step at the maximum power point
	var u float64
	switch {
	case v > vmp:
		u = 1
	case v == vmp:
		u = 0.5
	}
	i := above*u + below*(1-u)

	if math.IsNaN(i) || math.IsInf(i, 0) {
		return 0, ErrNoEstimate
	}
	return i, nil
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Power returns the estimated output power in milliwatts, rounded to three
// decimals.
func (m Module) Power(t, g, v float64) (float64, error) {
	i, err := m.Current(t, g, v)
	if err != nil {
		return 0, err
	}
	return math.Round(v*i*1000*1000) / 1000, nil
}
