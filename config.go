package bedrock

import "time"

// Config holds the tunables of a simulation world
type Config struct {
	// FixedDt is the nominal simulation timestep; workers step at
	// integer multiples of it
	FixedDt float64

	// SolverIterations is the PGS iteration count per step
	SolverIterations int

	// Sleep thresholds: an island is a sleep candidate while every
	// dynamic body stays below both
	LinearSleepThreshold  float64
	AngularSleepThreshold float64

	// TimeToSleep is how long the sleep condition must hold continuously
	TimeToSleep float64

	// SplitDelay debounces connectivity checks after topology changes
	SplitDelay float64

	// Workers sizes the job dispatcher thread pool
	Workers int

	Logger Logger
}

// DefaultConfig returns the standard configuration
func DefaultConfig() Config {
	return Config{
		FixedDt:               1.0 / 60.0,
		SolverIterations:      10,
		LinearSleepThreshold:  0.005,
		AngularSleepThreshold: 0.005,
		TimeToSleep:           0.5,
		SplitDelay:            1.1,
		Workers:               4,
		Logger:                NewNopLogger(),
	}
}

// maxLaggingSteps caps how far behind real time a worker will try to
// catch up; beyond it, simulation time is dropped rather than replayed
const maxLaggingSteps = 10

// clock returns the current time in seconds. Injected so tests can drive
// the stepper deterministically.
type clock func() float64

func wallClock() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
