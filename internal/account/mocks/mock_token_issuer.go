// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/accountd/internal/account"
)

// MockTokenIssuer is a mock implementation of account.TokenIssuer.
type MockTokenIssuer struct {
	mock.Mock
}

// NewMockTokenIssuer creates a MockTokenIssuer that asserts its
// expectations when the test ends.
func NewMockTokenIssuer(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockTokenIssuer {
	m := &MockTokenIssuer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ account.TokenIssuer = (*MockTokenIssuer)(nil)

// IssueSessionToken provides a mock function.
func (m *MockTokenIssuer) IssueSessionToken(accountID string) (string, time.Time, error) {
	args := m.Called(accountID)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

// IssueResetToken provides a mock function.
func (m *MockTokenIssuer) IssueResetToken(accountID string) (string, time.Time, error) {
	args := m.Called(accountID)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

// VerifyResetToken provides a mock function.
func (m *MockTokenIssuer) VerifyResetToken(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

// ResetTTL provides a mock function.
func (m *MockTokenIssuer) ResetTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}
