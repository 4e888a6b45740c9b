// Package integration holds end-to-end tests that run a real gauge server
// on a loopback port. They are behind the integration build tag:
//
//	go test -tags integration ./internal/integration/...
package integration
