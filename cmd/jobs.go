package cmd

import (
	"fmt"
	"sort"

	"github.com/telhawk-systems/reformat/internal/batch"
	"github.com/telhawk-systems/reformat/internal/config"
	"github.com/telhawk-systems/reformat/internal/pipeline"
	"github.com/telhawk-systems/reformat/internal/record"
	"github.com/telhawk-systems/reformat/internal/sink"
)

// buildJobs resolves the named jobs, or the configured order when names is
// empty, into batch jobs. Disabled jobs are left out.
func buildJobs(c *config.Config, names []string) ([]batch.Job, error) {
	if len(names) == 0 {
		names = c.Jobs.Order
	}

	jobs := make([]batch.Job, 0, len(names))
	for _, name := range names {
		jc, ok := c.Jobs.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown job %q", name)
		}
		if !jc.Enabled {
			continue
		}

		family, err := pipeline.ParseFamily(name)
		if err != nil {
			return nil, err
		}
		dests, err := destinations(jc)
		if err != nil {
			return nil, fmt.Errorf("jobs.%s.outputs: %w", name, err)
		}

		jobs = append(jobs, batch.Job{
			Name:         name,
			Family:       family,
			InputDir:     jc.InputDir,
			Destinations: dests,
		})
	}
	return jobs, nil
}

func destinations(jc config.JobConfig) ([]sink.Destination, error) {
	dests := make([]sink.Destination, 0, len(jc.Outputs))
	for name, dir := range jc.Outputs {
		cat, err := record.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		dests = append(dests, sink.Destination{Category: cat, Dir: dir})
	}
	sort.Slice(dests, func(i, j int) bool {
		return dests[i].Category < dests[j].Category
	})
	return dests, nil
}
