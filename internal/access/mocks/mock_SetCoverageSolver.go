package mocks

import (
	"context"

	access "github.com/sells-group/access-cli/internal/access"
	mock "github.com/stretchr/testify/mock"
)

// MockSetCoverageSolver is a mock type for the SetCoverageSolver interface.
type MockSetCoverageSolver struct {
	mock.Mock
}

// SetCoverage provides a mock function with given fields: ctx, req
func (_m *MockSetCoverageSolver) SetCoverage(ctx context.Context, req access.CoverageRequest) ([]bool, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for SetCoverage")
	}

	var r0 []bool
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, access.CoverageRequest) ([]bool, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, access.CoverageRequest) []bool); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]bool)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, access.CoverageRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockSetCoverageSolver creates a new instance of MockSetCoverageSolver.
func NewMockSetCoverageSolver(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSetCoverageSolver {
	mock := &MockSetCoverageSolver{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
