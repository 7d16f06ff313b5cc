// Package models defines the data structures exchanged with the remote movie
// catalog API, the gateway's own JSON error bodies, and the session records
// kept in Redis.
package models

import "time"

// Genre is a movie genre.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Person holds the fields shared by actors and directors.
type Person struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Surname   string     `json:"surname,omitempty"`
	Biography string     `json:"biography,omitempty"`
	BirthDate *time.Time `json:"birthDay,omitempty"`
	PhotoURL  string     `json:"pictureUrl,omitempty"`
}

// FullName returns "Name Surname", or just the name when there is no surname.
func (p Person) FullName() string {
	if p.Surname == "" {
		return p.Name
	}
	return p.Name + " " + p.Surname
}

// Actor is a catalog actor.
type Actor struct {
	Person
	Movies []MovieSummary `json:"movies,omitempty"`
}

// Director is a catalog director.
type Director struct {
	Person
	Movies []MovieSummary `json:"movies,omitempty"`
}

// MovieSummary is the short movie form embedded in actor and director records.
type MovieSummary struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	PosterURL string `json:"posterUrl,omitempty"`
}

// Movie is a catalog movie.
type Movie struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	ReleaseDate   *time.Time `json:"releaseDate,omitempty"`
	Duration      int        `json:"duration,omitempty"`
	PosterURL     string     `json:"posterUrl,omitempty"`
	BackdropURL   string     `json:"backdropUrl,omitempty"`
	TrailerURL    string     `json:"trailerUrl,omitempty"`
	AverageRating float64    `json:"averageRating"`
	RatingCount   int        `json:"ratingCount"`
	Genres        []Genre    `json:"genres,omitempty"`
	Director      *Person    `json:"director,omitempty"`
	Actors        []Person   `json:"actors,omitempty"`
}

// MovieInput is the create/update payload for a movie.
type MovieInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	ReleaseDate string  `json:"releaseDate,omitempty"`
	Duration    int     `json:"duration,omitempty"`
	PosterURL   string  `json:"posterUrl,omitempty"`
	BackdropURL string  `json:"backdropUrl,omitempty"`
	TrailerURL  string  `json:"trailerUrl,omitempty"`
	GenreIDs    []int64 `json:"genreIds,omitempty"`
	DirectorID  *int64  `json:"directorId,omitempty"`
	ActorIDs    []int64 `json:"actorIds,omitempty"`
}

// PersonInput is the create/update payload for actors and directors.
type PersonInput struct {
	Name      string `json:"name"`
	Surname   string `json:"surname,omitempty"`
	Biography string `json:"biography,omitempty"`
	BirthDate string `json:"birthDay,omitempty"`
	PhotoURL  string `json:"pictureUrl,omitempty"`
}

// Comment is a user comment on a movie.
type Comment struct {
	ID        int64     `json:"id"`
	MovieID   int64     `json:"movieId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Likes     int       `json:"likesCount"`
	Dislikes  int       `json:"dislikesCount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// CommentInput is the create/update payload for a comment.
type CommentInput struct {
	MovieID int64  `json:"movieId,omitempty"`
	Content string `json:"content"`
}

// Rating is a user's rating of a movie.
type Rating struct {
	ID         int64     `json:"id"`
	MovieID    int64     `json:"movieId"`
	MovieTitle string    `json:"movieTitle,omitempty"`
	Username   string    `json:"username,omitempty"`
	Score      int       `json:"rating"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RatingInput is the payload for rating a movie.
type RatingInput struct {
	MovieID int64 `json:"movieId"`
	Score   int   `json:"rating"`
}

// WatchStatus is the state of a movie on a user's watchlist.
type WatchStatus string

const (
	// WatchStatusPlanned marks a movie the user intends to watch.
	WatchStatusPlanned WatchStatus = "PLAN_TO_WATCH"
	// WatchStatusWatching marks a movie the user is watching.
	WatchStatusWatching WatchStatus = "WATCHING"
	// WatchStatusWatched marks a movie the user has watched.
	WatchStatusWatched WatchStatus = "WATCHED"
)

// WatchlistEntry is a movie on the user's watchlist.
type WatchlistEntry struct {
	ID      int64        `json:"id"`
	Movie   MovieSummary `json:"movie"`
	Status  WatchStatus  `json:"status"`
	AddedAt time.Time    `json:"addedAt"`
}

// WatchlistInput is the payload for adding or updating a watchlist entry.
type WatchlistInput struct {
	MovieID int64       `json:"movieId"`
	Status  WatchStatus `json:"status,omitempty"`
}

// WatchlistStatus answers "is this movie on my watchlist".
type WatchlistStatus struct {
	MovieID     int64       `json:"movieId"`
	InWatchlist bool        `json:"inWatchlist"`
	Status      WatchStatus `json:"status,omitempty"`
}

// BatchStatusRequest is the payload of the batch watchlist status endpoint.
type BatchStatusRequest struct {
	MovieIDs []int64 `json:"movieIds"`
}

// UserProfile is a platform user as seen by the API.
type UserProfile struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email,omitempty"`
	FirstName      string    `json:"firstName,omitempty"`
	LastName       string    `json:"lastName,omitempty"`
	ProfilePicture string    `json:"profilePictureUrl,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	Banned         bool      `json:"banned"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}

// ProfileInput is the payload for updating the caller's own profile.
type ProfileInput struct {
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	ProfilePicture string `json:"profilePictureUrl,omitempty"`
	Bio            string `json:"bio,omitempty"`
}

// BanRequest is the payload of the admin ban endpoint.
type BanRequest struct {
	Reason string `json:"reason,omitempty"`
}
