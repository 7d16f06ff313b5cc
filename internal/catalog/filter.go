package catalog

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/alpyxn/moviestar/internal/models"
)

// SortKey selects a movie ordering.
type SortKey string

const (
	SortByTitle      SortKey = "title"
	SortByRating     SortKey = "rating"
	SortByRelease    SortKey = "release"
	SortByPopularity SortKey = "popularity"
)

// ParseSortKey validates a sort key taken from user input. An empty string
// means SortByTitle.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortByTitle, nil
	case SortByTitle, SortByRating, SortByRelease, SortByPopularity:
		return k, nil
	default:
		return "", &models.ValidationError{
			Field:   "sort",
			Message: fmt.Sprintf("unknown sort key %q", s),
		}
	}
}

// FilterMovies returns the movies whose title, director or genre contains
// query, ignoring case. A blank query keeps every movie. The input is not
// modified.
func FilterMovies(movies []models.Movie, query string) []models.Movie {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return slices.Clone(movies)
	}

	out := make([]models.Movie, 0, len(movies))
	for _, m := range movies {
		if matches(m, q) {
			out = append(out, m)
		}
	}
	return out
}

func matches(m models.Movie, q string) bool {
	if strings.Contains(strings.ToLower(m.Title), q) {
		return true
	}
	if m.Director != nil && strings.Contains(strings.ToLower(m.Director.FullName()), q) {
		return true
	}
	for _, g := range m.Genres {
		if strings.Contains(strings.ToLower(g.Name), q) {
			return true
		}
	}
	return false
}

// SortMovies returns a sorted copy of movies. Ratings, release dates and
// popularity sort best or newest first; ties keep title order.
func SortMovies(movies []models.Movie, by SortKey) []models.Movie {
	out := slices.Clone(movies)
	byTitle := func(a, b models.Movie) int {
		return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	}

	var less func(a, b models.Movie) int
	switch by {
	case SortByRating:
		less = func(a, b models.Movie) int {
			return cmp.Or(cmp.Compare(b.AverageRating, a.AverageRating), byTitle(a, b))
		}
	case SortByRelease:
		less = func(a, b models.Movie) int {
			return cmp.Or(compareDates(b, a), byTitle(a, b))
		}
	case SortByPopularity:
		less = func(a, b models.Movie) int {
			return cmp.Or(cmp.Compare(b.RatingCount, a.RatingCount), byTitle(a, b))
		}
	default:
		less = byTitle
	}

	slices.SortStableFunc(out, less)
	return out
}

// compareDates orders movies by release date; undated movies come first so
// that, reversed, they sort last.
func compareDates(a, b models.Movie) int {
	switch {
	case a.ReleaseDate == nil && b.ReleaseDate == nil:
		return 0
	case a.ReleaseDate == nil:
		return -1
	case b.ReleaseDate == nil:
		return 1
	default:
		return a.ReleaseDate.Compare(*b.ReleaseDate)
	}
}
