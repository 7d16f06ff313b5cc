package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newWatchlistCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watchlist",
		Short: "Inspect your watchlist",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status <movie-id>...",
		Short: "Show whether movies are on your watchlist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseMovieIDs(args)
			if err != nil {
				return err
			}

			session, cat, err := c.catalogClient(cmd)
			if err != nil {
				return err
			}
			if !session.Authenticated() {
				return errNotLoggedIn
			}

			statuses, err := cat.BatchWatchlistStatus(cmd.Context(), ids)
			if err != nil {
				return describe(err)
			}

			out := cmd.OutOrStdout()
			seen := make(map[int64]bool, len(ids))
			for _, id := range ids {
				if seen[id] {
					continue
				}
				seen[id] = true

				st := statuses[id]
				if !st.InWatchlist {
					fmt.Fprintf(out, "%6d  not on watchlist\n", id)
					continue
				}
				fmt.Fprintf(out, "%6d  %s\n", id, st.Status)
			}
			return nil
		},
	})
	return cmd
}

func parseMovieIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid movie id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
