// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/loopgate/loopgate/internal/provider"
)

// MockCaller is a configurable test double for provider.Caller.
// Set CompleteFunc to control behavior; an unset func panics on call.
// Every request is recorded for later inspection. Safe for concurrent use.
type MockCaller struct {
	CompleteFunc func(ctx context.Context, req provider.Request) (provider.Response, error)

	mu       sync.Mutex
	Requests []provider.Request
}

// Complete delegates to CompleteFunc and records the request.
func (m *MockCaller) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// ModelName implements provider.Caller.
func (m *MockCaller) ModelName() string { return "mock" }

// Calls returns the number of Complete invocations so far.
func (m *MockCaller) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Request returns a copy of the i-th recorded request.
func (m *MockCaller) Request(i int) provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Requests[i]
}

// Interface guard.
var _ provider.Caller = (*MockCaller)(nil)
