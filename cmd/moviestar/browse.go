package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alpyxn/moviestar/internal/client"
	"github.com/alpyxn/moviestar/internal/loader"
	"github.com/alpyxn/moviestar/internal/models"
)

const (
	viewMovies    = "movies"
	viewActors    = "actors"
	viewDirectors = "directors"
)

func newBrowseCmd(c *cli) *cobra.Command {
	var (
		batch  int
		search string
	)

	cmd := &cobra.Command{
		Use:   "browse movies|actors|directors",
		Short: "Page through the catalog",
		Long: `Page through the catalog one batch at a time.

Press Enter to scroll to the end of the list and load the next batch, or
q to stop. The batch size comes from the per-view configuration unless
--batch is given.`,
		ValidArgs: []string{viewMovies, viewActors, viewDirectors},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			view := args[0]
			if search != "" && view != viewMovies {
				return fmt.Errorf("--search only applies to %s", viewMovies)
			}

			size := c.cfg.BatchSize(view)
			if cmd.Flags().Changed("batch") {
				size = batch
			}

			_, cat, err := c.catalogClient(cmd)
			if err != nil {
				return err
			}

			b := &browser{
				in:        bufio.NewScanner(cmd.InOrStdin()),
				out:       cmd.OutOrStdout(),
				threshold: c.cfg.Loader.ProximityThreshold,
				log:       c.logger.WithField("view", view),
			}
			switch view {
			case viewActors:
				return describe(browse(cmd.Context(), b, cat.ActorPages(), size, formatActor))
			case viewDirectors:
				return describe(browse(cmd.Context(), b, cat.DirectorPages(), size, formatDirector))
			default:
				return describe(browse(cmd.Context(), b, cat.MoviePages(search), size, formatMovie))
			}
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 0, "Items per batch (default: configured for the view)")
	cmd.Flags().StringVar(&search, "search", "", "Only movies matching this query")
	return cmd
}

// browser is the terminal stand-in for a scrolling list: printed rows are
// the visible area, and the prompt after the last row is the end-of-list
// sentinel.
type browser struct {
	in        *bufio.Scanner
	out       io.Writer
	threshold int
	log       logrus.FieldLogger
}

// browse prints the collection batch by batch. Every Enter scrolls the
// sentinel into view, which is what asks the loader for the next page.
func browse[T any](ctx context.Context, b *browser, fetch loader.PageFetcher[T], batchSize int, format func(T) string) error {
	paged := loader.NewPaged(fetch, batchSize, b.log)
	defer paged.Close()

	var (
		feed    loader.Broadcaster
		pending <-chan struct{}
	)
	stop := loader.Watch(&feed, b.threshold, func() {
		pending = paged.RequestMore()
	})
	defer stop()

	// An empty list shows its sentinel straight away.
	feed.Publish(loader.Proximity{Distance: 0})

	shown := 0
	for {
		if pending != nil {
			select {
			case <-pending:
			case <-ctx.Done():
				return ctx.Err()
			}
			pending = nil
		}

		items := paged.Displayed()
		for _, item := range items[shown:] {
			fmt.Fprintln(b.out, format(item))
		}
		shown = len(items)

		// Any other fetch failure has already exhausted the list.
		if err := paged.Err(); client.IsAuthError(err) {
			return err
		}
		if !paged.HasMore() {
			fmt.Fprintf(b.out, "-- end of list, %d shown --\n", shown)
			return nil
		}

		// The new rows pushed the sentinel out of view.
		feed.Publish(loader.Proximity{Distance: b.threshold + 1})

		fmt.Fprint(b.out, "-- Enter for more, q to quit --")
		if !b.in.Scan() || strings.EqualFold(strings.TrimSpace(b.in.Text()), "q") {
			fmt.Fprintln(b.out)
			return b.in.Err()
		}
		feed.Publish(loader.Proximity{Distance: 0})
	}
}

func formatMovie(m models.Movie) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%6d  %s", m.ID, m.Title)
	if m.ReleaseDate != nil {
		fmt.Fprintf(&sb, " (%d)", m.ReleaseDate.Year())
	}
	if m.RatingCount > 0 {
		fmt.Fprintf(&sb, "  %.1f/10 from %d", m.AverageRating, m.RatingCount)
	}
	return sb.String()
}

func formatActor(a models.Actor) string {
	return formatPerson(a.Person, len(a.Movies))
}

func formatDirector(d models.Director) string {
	return formatPerson(d.Person, len(d.Movies))
}

func formatPerson(p models.Person, movies int) string {
	if movies == 0 {
		return fmt.Sprintf("%6d  %s", p.ID, p.FullName())
	}
	return fmt.Sprintf("%6d  %s  (%d movies)", p.ID, p.FullName(), movies)
}
