// Package constants provides named constants used throughout clonesim.
// This centralizes defaults and numeric tolerances so the simulator, the
// run-file loader and the CLI agree on them.
package constants

// Run defaults applied by the run-file loader when a field is omitted.
const (
	// DefaultReplicates is the number of Monte Carlo replicates per run.
	DefaultReplicates = 100

	// DefaultSaveEvery is the snapshot interval in time steps.
	DefaultSaveEvery = 1

	// DefaultExtinctN is the density below which a line is considered extinct.
	DefaultExtinctN = 1.0

	// DefaultSeed is the top-level seed used when a run file sets none.
	DefaultSeed = 1337
)

// Process-error constants
const (
	// PoissonCutoff is the largest expected count that is drawn from a Poisson
	// distribution. Larger expectations use the mean-preserving log-normal
	// approximation with the same variance.
	PoissonCutoff = 100.0
)

// Numerical tolerances
const (
	// EigenImagTolerance is the largest imaginary part still treated as zero
	// when picking the dominant eigenvalue of a projection matrix.
	EigenImagTolerance = 1e-9

	// EigenTieTolerance is the relative modulus gap under which two
	// eigenvalues are considered tied for dominance.
	EigenTieTolerance = 1e-9
)

// MCP surface limits
const (
	// DefaultMCPMaxReplicates caps the replicate count of a simulate tool call.
	DefaultMCPMaxReplicates = 200

	// DefaultMCPRatePerSecond is the sustained tool-call rate per tool.
	DefaultMCPRatePerSecond = 2.0

	// DefaultMCPBurst is the tool-call burst size per tool.
	DefaultMCPBurst = 5
)
