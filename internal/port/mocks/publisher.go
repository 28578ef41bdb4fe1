package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
)

// PublisherMock is a mock of port.Publisher.
type PublisherMock struct {
	mock.Mock
}

type PublisherMock_Expecter struct {
	mock *mock.Mock
}

func (_m *PublisherMock) EXPECT() *PublisherMock_Expecter {
	return &PublisherMock_Expecter{mock: &_m.Mock}
}

func (_m *PublisherMock) Publish(ctx context.Context, name string, path string) error {
	ret := _m.Called(ctx, name, path)

	if rf, ok := ret.Get(0).(func(context.Context, string, string) error); ok {
		return rf(ctx, name, path)
	}
	return ret.Error(0)
}

type PublisherMock_Publish_Call struct {
	*mock.Call
}

func (_e *PublisherMock_Expecter) Publish(ctx interface{}, name interface{}, path interface{}) *PublisherMock_Publish_Call {
	return &PublisherMock_Publish_Call{Call: _e.mock.On("Publish", ctx, name, path)}
}

func (_c *PublisherMock_Publish_Call) Run(run func(ctx context.Context, name string, path string)) *PublisherMock_Publish_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(string), args[2].(string))
	})
	return _c
}

func (_c *PublisherMock_Publish_Call) Return(err error) *PublisherMock_Publish_Call {
	_c.Call.Return(err)
	return _c
}

// NewPublisherMock creates a PublisherMock whose expectations are asserted
// at test cleanup.
func NewPublisherMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *PublisherMock {
	m := &PublisherMock{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
