// Package gatewaytest provides an in-process fake of the coven gateway's
// HTTP API for integration tests. It validates bearer tokens, can rotate or
// revoke credentials on demand, and counts the requests it serves so tests
// can assert cache hits.
package gatewaytest
