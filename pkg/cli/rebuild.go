package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/urfave/cli/v3"
)

func rebuildCommand() *cli.Command {
	var cfg config
	var company string

	flags := append(globalFlags(&cfg),
		&cli.StringFlag{
			Name:        "company",
			Usage:       "Company whose index entries to rebuild",
			Required:    true,
			Destination: &company,
		},
	)

	return &cli.Command{
		Name:  "rebuild",
		Usage: "Rebuild the vector index from canonical blob artifacts",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, err := cfg.newPipeline(ctx)
			if err != nil {
				return err
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			sp.Suffix = " rebuilding index..."
			sp.Start()
			result, err := uc.RebuildIndex(ctx, company)
			sp.Stop()
			if err != nil {
				return err
			}

			fmt.Printf("rebuilt %s: %d canonical reports, %d reindexed\n",
				result.Company, result.Canonical, result.Reindexed)
			for _, skipped := range result.SkippedErr {
				fmt.Printf("  skipped %s\n", skipped)
			}
			return nil
		},
	}
}
