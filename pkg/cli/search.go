package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var cfg config
	var limit int64

	flags := append(globalFlags(&cfg),
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of results",
			Value:       10,
			Destination: &limit,
		},
	)

	return &cli.Command{
		Name:      "search",
		Usage:     "Find canonical reports similar to a query text",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := c.Args().First()
			if query == "" {
				return goerr.New("query is required")
			}

			uc, err := cfg.newPipeline(ctx)
			if err != nil {
				return err
			}

			matches, err := uc.SearchSimilar(ctx, query, int(limit))
			if err != nil {
				return err
			}

			for _, m := range matches {
				fmt.Printf("%.4f  %s  %s\n", m.Score, m.ID, m.Metadata["storage_path"])
			}
			return nil
		},
	}
}
