package mocks

import (
	"context"

	"github.com/bnema/transcoder/internal/domain"
	mock "github.com/stretchr/testify/mock"
)

// ProberMock is a mock of port.Prober.
type ProberMock struct {
	mock.Mock
}

type ProberMock_Expecter struct {
	mock *mock.Mock
}

func (_m *ProberMock) EXPECT() *ProberMock_Expecter {
	return &ProberMock_Expecter{mock: &_m.Mock}
}

func (_m *ProberMock) Output(ctx context.Context, cmd domain.Command) ([]byte, error) {
	ret := _m.Called(ctx, cmd)

	var r0 []byte
	if rf, ok := ret.Get(0).(func(context.Context, domain.Command) []byte); ok {
		r0 = rf(ctx, cmd)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, domain.Command) error); ok {
		r1 = rf(ctx, cmd)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

type ProberMock_Output_Call struct {
	*mock.Call
}

func (_e *ProberMock_Expecter) Output(ctx interface{}, cmd interface{}) *ProberMock_Output_Call {
	return &ProberMock_Output_Call{Call: _e.mock.On("Output", ctx, cmd)}
}

func (_c *ProberMock_Output_Call) Run(run func(ctx context.Context, cmd domain.Command)) *ProberMock_Output_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(domain.Command))
	})
	return _c
}

func (_c *ProberMock_Output_Call) Return(out []byte, err error) *ProberMock_Output_Call {
	_c.Call.Return(out, err)
	return _c
}

// NewProberMock creates a ProberMock whose expectations are asserted at
// test cleanup.
func NewProberMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *ProberMock {
	m := &ProberMock{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
