// Package mocks provides test doubles for the access collaborators.
package mocks

import (
	"context"

	access "github.com/sells-group/access-cli/internal/access"
	mock "github.com/stretchr/testify/mock"
)

// MockProvider is a mock type for the Provider interface.
type MockProvider struct {
	mock.Mock
}

// Reachability provides a mock function with given fields: ctx, req
func (_m *MockProvider) Reachability(ctx context.Context, req access.ReachabilityRequest) (*access.Reachability, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Reachability")
	}

	var r0 *access.Reachability
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, access.ReachabilityRequest) (*access.Reachability, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, access.ReachabilityRequest) *access.Reachability); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*access.Reachability)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, access.ReachabilityRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockProvider creates a new instance of MockProvider.
func NewMockProvider(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockProvider {
	mock := &MockProvider{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
