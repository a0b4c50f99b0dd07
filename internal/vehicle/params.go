package vehicle

import (
	"fmt"
	"math"
)

const (
	DefaultEngines       = 3
	DefaultWaterDensity  = 997.0 // kg/m^3
	DefaultGravity       = 9.81  // m/s^2
	DefaultBayMass       = 7.0   // kg
	DefaultEngineDryMass = 9.0   // kg
	DefaultBayOD         = 0.1443
	DefaultBayLength     = 0.7
	DefaultEngineOD      = 0.1143
	DefaultEngineID      = 0.0965
	DefaultEngineLength  = 0.91
	// The piston travels over half the engine housing.
	DefaultPistonFraction = 0.5
)

// Params is the immutable geometry and constant set of one vehicle. It is
// built once at startup and passed by value to every component that needs it.
type Params struct {
	Engines        int     `yaml:"engines"`
	WaterDensity   float64 `yaml:"water_density"`
	Gravity        float64 `yaml:"gravity"`
	BayMass        float64 `yaml:"bay_mass"`
	EngineDryMass  float64 `yaml:"engine_dry_mass"`
	BayOD          float64 `yaml:"bay_od"`
	BayLength      float64 `yaml:"bay_length"`
	EngineOD       float64 `yaml:"engine_od"`
	EngineID       float64 `yaml:"engine_id"`
	EngineLength   float64 `yaml:"engine_length"`
	PistonFraction float64 `yaml:"piston_fraction"`
}

func DefaultParams() Params {
	return Params{
		Engines:        DefaultEngines,
		WaterDensity:   DefaultWaterDensity,
		Gravity:        DefaultGravity,
		BayMass:        DefaultBayMass,
		EngineDryMass:  DefaultEngineDryMass,
		BayOD:          DefaultBayOD,
		BayLength:      DefaultBayLength,
		EngineOD:       DefaultEngineOD,
		EngineID:       DefaultEngineID,
		EngineLength:   DefaultEngineLength,
		PistonFraction: DefaultPistonFraction,
	}
}

func (p Params) Validate() error {
	if p.Engines <= 0 {
		return fmt.Errorf("%w: engines must be positive, got %d", ErrInvalidParams, p.Engines)
	}
	checks := []struct {
		name  string
		value float64
	}{
		{"water_density", p.WaterDensity},
		{"gravity", p.Gravity},
		{"bay_mass", p.BayMass},
		{"engine_dry_mass", p.EngineDryMass},
		{"bay_od", p.BayOD},
		{"bay_length", p.BayLength},
		{"engine_od", p.EngineOD},
		{"engine_id", p.EngineID},
		{"engine_length", p.EngineLength},
		{"piston_fraction", p.PistonFraction},
	}
	for _, c := range checks {
		if !(c.value > 0) || math.IsInf(c.value, 0) {
			return fmt.Errorf("%w: %s must be positive, got %g", ErrInvalidParams, c.name, c.value)
		}
	}
	if p.EngineID >= p.EngineOD {
		return fmt.Errorf("%w: engine_id %g must be smaller than engine_od %g", ErrInvalidParams, p.EngineID, p.EngineOD)
	}
	if p.PistonFraction > 1 {
		return fmt.Errorf("%w: piston_fraction must be at most 1, got %g", ErrInvalidParams, p.PistonFraction)
	}
	return nil
}

func cylinder(diameter, length float64) float64 {
	r := diameter / 2
	return math.Pi * r * r * length
}

// BayVolume is the displaced volume of the instrument bay in m^3.
func (p Params) BayVolume() float64 { return cylinder(p.BayOD, p.BayLength) }

// EngineVolume is the displaced volume of one engine housing in m^3.
func (p Params) EngineVolume() float64 { return cylinder(p.EngineOD, p.EngineLength) }

// PistonVolume is the floodable volume of one engine's piston chamber in m^3.
func (p Params) PistonVolume() float64 {
	return cylinder(p.EngineID, p.PistonFraction*p.EngineLength)
}

// DryMass is the hardware mass with every piston chamber empty.
func (p Params) DryMass() float64 {
	return p.BayMass + p.EngineDryMass*float64(p.Engines)
}

// Volume is the displaced volume of the whole vehicle. Piston chambers sit
// inside the engine housings, so flooding them changes mass, not volume.
func (p Params) Volume() float64 {
	return p.BayVolume() + p.EngineVolume()*float64(p.Engines)
}

// Mass returns the vehicle mass for the given engine extensions. An extension
// of 1 is an empty chamber, 0 a flooded one. Only the first p.Engines
// extensions contribute; fewer than that is ErrEngineCount.
func (p Params) Mass(extensions []float64) (float64, error) {
	if len(extensions) == 0 {
		return 0, ErrNoEngines
	}
	if len(extensions) < p.Engines {
		return 0, fmt.Errorf("%w: %d extensions for %d engines", ErrEngineCount, len(extensions), p.Engines)
	}
	mass := p.DryMass()
	water := p.PistonVolume() * p.WaterDensity
	for i := 0; i < p.Engines; i++ {
		mass += (1 - extensions[i]) * water
	}
	return mass, nil
}

// Density returns mass over displaced volume; compare against WaterDensity.
func (p Params) Density(extensions []float64) (float64, error) {
	m, err := p.Mass(extensions)
	if err != nil {
		return 0, err
	}
	return m / p.Volume(), nil
}

// Forces breaks the vertical force balance into its parts. Positive net force
// points down.
type Forces struct {
	Gravity  float64
	Buoyancy float64
	Net      float64
	Mass     float64
}

// Acceleration is Net/Mass in m/s^2, positive when sinking.
func (f Forces) Acceleration() float64 { return f.Net / f.Mass }

func (p Params) Forces(extensions []float64) (Forces, error) {
	m, err := p.Mass(extensions)
	if err != nil {
		return Forces{}, err
	}
	fg := m * p.Gravity
	fb := p.WaterDensity * p.Volume() * p.Gravity
	return Forces{Gravity: fg, Buoyancy: fb, Net: fg - fb, Mass: m}, nil
}

// NeutralExtension is the mean extension at which the vehicle is neutrally
// buoyant. Values outside [0,1] mean neutral buoyancy is unreachable.
func (p Params) NeutralExtension() float64 {
	excess := p.WaterDensity*p.Volume() - p.DryMass()
	water := p.PistonVolume() * p.WaterDensity * float64(p.Engines)
	return 1 - excess/water
}
