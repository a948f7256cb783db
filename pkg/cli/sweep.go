package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/intelforge/reportpipe/pkg/usecase/dedup"
)

func sweepCommand() *cli.Command {
	var cfg config
	var (
		company string
		date    string
	)

	flags := append(globalFlags(&cfg),
		&cli.StringFlag{
			Name:        "company",
			Usage:       "Company whose artifacts to sweep (all companies when omitted)",
			Destination: &company,
		},
		&cli.StringFlag{
			Name:        "date",
			Usage:       "Limit the sweep to one day (YYYY-MM-DD)",
			Destination: &date,
		},
	)

	return &cli.Command{
		Name:  "sweep",
		Usage: "Delete superseded blob artifacts, keeping the canonical report per day",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			pcfg, err := cfg.pipelineConfig()
			if err != nil {
				return err
			}
			storage, err := cfg.newStorage(ctx)
			if err != nil {
				return err
			}
			dedupLog, err := cfg.newDedupLog(ctx)
			if err != nil {
				return err
			}

			uc := newDedupUseCase(dedupLog, storage, pcfg)

			var results []*dedup.SweepResult
			if company == "" {
				results, err = uc.SweepAll(ctx, date)
			} else {
				var result *dedup.SweepResult
				result, err = uc.Sweep(ctx, company, date)
				if result != nil {
					results = append(results, result)
				}
			}
			if err != nil {
				return err
			}

			for _, result := range results {
				fmt.Printf("swept %s: %d artifacts seen, %d removed\n",
					result.Company, result.ArtifactsSeen, len(result.Removed))
				for day, kept := range result.KeptPerDay {
					fmt.Printf("  %s: kept %s\n", day, kept)
				}
			}
			return nil
		},
	}
}
