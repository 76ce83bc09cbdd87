//go:build integration

// Package integration provides integration tests for the rangestream library.
//
// These tests require Docker and spin up a real HTTP range server using
// testcontainers. Run with: go test -tags=integration ./integration/...
package integration
