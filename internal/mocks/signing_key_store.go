package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sgrastar/authrim-sub002/internal/model"
)

var _ model.SigningKeyStore = (*SigningKeyStore)(nil)

// SigningKeyStore is a testify mock for model.SigningKeyStore.
type SigningKeyStore struct {
	mock.Mock
}

func (m *SigningKeyStore) Save(ctx context.Context, key model.SigningKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *SigningKeyStore) List(ctx context.Context) ([]model.SigningKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SigningKey), args.Error(1)
}

func (m *SigningKeyStore) MarkActive(ctx context.Context, kid string, demotedAt time.Time) error {
	args := m.Called(ctx, kid, demotedAt)
	return args.Error(0)
}

func (m *SigningKeyStore) Delete(ctx context.Context, kid string) error {
	args := m.Called(ctx, kid)
	return args.Error(0)
}
