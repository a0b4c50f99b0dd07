package vehicle

import "errors"

// Configuration errors. These are fatal to the simulator: integrating over an
// undefined mass produces NaN, never a usable trajectory.
var (
	// ErrNoEngines indicates a mass query with no buoyancy engines wired in.
	ErrNoEngines = errors.New("vehicle: buoyancy engines not initialized")

	// ErrEngineCount indicates an engine bank whose size disagrees with the geometry.
	ErrEngineCount = errors.New("vehicle: engine count does not match geometry")

	// ErrInvalidParams indicates a non-positive dimension, mass or density.
	ErrInvalidParams = errors.New("vehicle: invalid parameters")
)
