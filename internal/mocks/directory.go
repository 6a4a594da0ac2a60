package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sgrastar/authrim-sub002/internal/model"
)

var _ model.Directory = (*Directory)(nil)

// Directory is a testify mock for model.Directory.
type Directory struct {
	mock.Mock
}

func (m *Directory) EffectiveRoles(ctx context.Context, subjectID string) ([]string, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *Directory) OrganizationInfo(ctx context.Context, subjectID string) (model.Organization, error) {
	args := m.Called(ctx, subjectID)
	return args.Get(0).(model.Organization), args.Error(1)
}

func (m *Directory) UserType(ctx context.Context, subjectID string) (string, error) {
	args := m.Called(ctx, subjectID)
	return args.String(0), args.Error(1)
}

func (m *Directory) ScopedRoles(ctx context.Context, subjectID string) (map[string][]string, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]string), args.Error(1)
}

func (m *Directory) Organizations(ctx context.Context, subjectID string) ([]model.Organization, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Organization), args.Error(1)
}

func (m *Directory) RelationshipSummary(ctx context.Context, subjectID string) (model.RelationshipSummary, error) {
	args := m.Called(ctx, subjectID)
	return args.Get(0).(model.RelationshipSummary), args.Error(1)
}
