// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks for account interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/accountd/internal/account"
)

// MockRepository is a mock implementation of account.Repository.
type MockRepository struct {
	mock.Mock
}

// NewMockRepository creates a MockRepository that asserts its expectations
// when the test ends.
func NewMockRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockRepository {
	m := &MockRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ account.Repository = (*MockRepository)(nil)

// Create provides a mock function.
func (m *MockRepository) Create(ctx context.Context, acct *account.Account) error {
	args := m.Called(ctx, acct)
	return args.Error(0)
}

// GetByID provides a mock function.
func (m *MockRepository) GetByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	args := m.Called(ctx, id)
	return accountArg(args, 0), args.Error(1)
}

// GetByHandle provides a mock function.
func (m *MockRepository) GetByHandle(ctx context.Context, handle string) (*account.Account, error) {
	args := m.Called(ctx, handle)
	return accountArg(args, 0), args.Error(1)
}

// GetByEmail provides a mock function.
func (m *MockRepository) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	args := m.Called(ctx, email)
	return accountArg(args, 0), args.Error(1)
}

// UpdatePassword provides a mock function.
func (m *MockRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, updatedAt time.Time) error {
	args := m.Called(ctx, id, passwordHash, updatedAt)
	return args.Error(0)
}

func accountArg(args mock.Arguments, i int) *account.Account {
	if v := args.Get(i); v != nil {
		return v.(*account.Account)
	}
	return nil
}
