// Package integration contains integration tests for the MovieStar gateway.
//
// These tests use testcontainers to spin up real dependencies (Redis) and
// exercise the session store, the login state hand-off and the rate limiter
// against them. They are skipped with -short.
package integration
