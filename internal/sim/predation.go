package sim

// prey removes a fixed proportion of every stage of every line.
func prey(cfg *Config, p *Patch) {
	for l, line := range cfg.Lines {
		if line.PredRate == 0 {
			continue
		}
		keep := 1 - line.PredRate
		for s := range p.Density[l] {
			p.Density[l][s] *= keep
		}
	}
	p.Total()
}
