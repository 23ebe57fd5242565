// Package sim is the stochastic metapopulation engine.
//
// A run is a set of independent replicates. Each replicate owns a seeded
// random stream and a set of host-plant patches, and advances them one time
// step at a time through four stages in a fixed order:
//
//	project   stage-structured growth per line (projector.go)
//	prey      density-independent predation (predation.go)
//	disperse  winged-morph emigration and redistribution (dispersal.go)
//	lifecycle plant death, density cap and scheduled clearing (lifecycle.go)
//
// Simulate fans the replicates out over a bounded worker pool and merges
// their snapshots into one long-format Table ordered by replicate, time,
// patch, line and stage.
//
// Usage:
//
//	cfg := sim.Config{NReps: 100, MaxT: 120, ...}
//	res, err := sim.Simulate(ctx, cfg, sim.RunOptions{Logger: logger})
//	if err != nil {
//	    return err
//	}
//	for _, row := range res.Table.Rows {
//	    ...
//	}
package sim
