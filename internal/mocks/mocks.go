package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"presence-service/internal/auth"
	"presence-service/internal/models"
	"presence-service/internal/repositories"
)

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (models.Identity, error) {
	args := m.Called(ctx, token)
	var identity models.Identity
	if val := args.Get(0); val != nil {
		identity = val.(models.Identity)
	}
	return identity, args.Error(1)
}

type UserStatusRepositoryMock struct {
	mock.Mock
}

func (m *UserStatusRepositoryMock) LoadUserStatus(ctx context.Context, userID string) (models.UserStatus, error) {
	args := m.Called(ctx, userID)
	var status models.UserStatus
	if val := args.Get(0); val != nil {
		status = val.(models.UserStatus)
	}
	return status, args.Error(1)
}

var _ auth.Verifier = (*VerifierMock)(nil)
var _ repositories.UserStatusRepository = (*UserStatusRepositoryMock)(nil)
