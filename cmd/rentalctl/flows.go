package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rentalhq/backoffice/db"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type flowSeeds struct {
	Flows []db.Flow `yaml:"flows"`
}

// parseFlowSeeds reads the flows of a seed file. Unknown keys and repeated
// slugs are rejected.
func parseFlowSeeds(r io.Reader) ([]db.Flow, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var seeds flowSeeds
	if err := dec.Decode(&seeds); err != nil {
		return nil, fmt.Errorf("cannot decode flow seeds: %w", err)
	}
	seen := map[string]bool{}
	for _, f := range seeds.Flows {
		if f.Slug == "" {
			return nil, fmt.Errorf("flow %q has no slug", f.Name)
		}
		if seen[f.Slug] {
			return nil, fmt.Errorf("flow %q is repeated", f.Slug)
		}
		seen[f.Slug] = true
	}
	return seeds.Flows, nil
}

func seedFlowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-flows [file.yaml]",
		Short: "Create or update the flows listed in a YAML file",
		Example: `  flows:
    - name: Dream Drives Campervans
      slug: campervans
      depositType: percent
      depositValue: 25
      bondCents: 100000
      balanceDueDays: 14`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fd, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer fd.Close()
			flows, err := parseFlowSeeds(fd)
			if err != nil {
				return err
			}
			database, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close()
			for i := range flows {
				if err := database.SetFlow(&flows[i]); err != nil {
					return fmt.Errorf("flow %s: %w", flows[i].Slug, err)
				}
				cmd.Printf("flow %s stored\n", flows[i].Slug)
			}
			return nil
		},
	}
}
