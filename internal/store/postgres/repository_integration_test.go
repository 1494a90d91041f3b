// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/store/postgres"
)

func setupPostgres(ctx context.Context) (*postgres.Repository, string, func(), error) {
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("accountd_test"),
		tcpostgres.WithUsername("accountd"),
		tcpostgres.WithPassword("accountd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", nil, err
	}

	m, err := postgres.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", nil, err
	}
	if err := m.Up(); err != nil {
		_ = m.Close()
		_ = container.Terminate(ctx)
		return nil, "", nil, err
	}
	_ = m.Close()

	repo, err := postgres.Open(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", nil, err
	}

	cleanup := func() {
		_ = repo.Close(ctx)
		_ = container.Terminate(ctx)
	}
	return repo, connStr, cleanup, nil
}

var _ = Describe("Repository", Ordered, func() {
	var (
		ctx     context.Context
		repo    *postgres.Repository
		connStr string
		cleanup func()
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		repo, connStr, cleanup, err = setupPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if cleanup != nil {
			cleanup()
		}
	})

	newAccount := func(handle, email string) *account.Account {
		acct, err := account.NewAccount(handle, email, "$argon2id$fake", time.Now().UTC().Truncate(time.Microsecond))
		Expect(err).NotTo(HaveOccurred())
		return acct
	}

	It("pings", func() {
		Expect(repo.Ping(ctx)).To(Succeed())
	})

	It("round-trips an account by every key", func() {
		acct := newAccount("alice", "alice@x.com")
		Expect(repo.Create(ctx, acct)).To(Succeed())

		byID, err := repo.GetByID(ctx, acct.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byID.Handle).To(Equal("alice"))
		Expect(byID.CreatedAt.Equal(acct.CreatedAt)).To(BeTrue())

		byHandle, err := repo.GetByHandle(ctx, "ALICE")
		Expect(err).NotTo(HaveOccurred())
		Expect(byHandle.ID).To(Equal(acct.ID))

		byEmail, err := repo.GetByEmail(ctx, "alice@x.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(acct.ID))
	})

	It("rejects a handle differing only in case", func() {
		err := repo.Create(ctx, newAccount("Alice", "other@x.com"))
		Expect(err).To(MatchError(account.ErrConflict))
	})

	It("rejects a duplicate email", func() {
		err := repo.Create(ctx, newAccount("bob", "alice@x.com"))
		Expect(err).To(MatchError(account.ErrConflict))
	})

	It("updates only the password hash", func() {
		acct, err := repo.GetByHandle(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())

		later := time.Now().UTC().Truncate(time.Microsecond)
		Expect(repo.UpdatePassword(ctx, acct.ID, "new-hash", later)).To(Succeed())

		got, err := repo.GetByID(ctx, acct.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.PasswordHash).To(Equal("new-hash"))
		Expect(got.Email).To(Equal(acct.Email))
		Expect(got.Handle).To(Equal(acct.Handle))
		Expect(got.UpdatedAt.Equal(later)).To(BeTrue())
	})

	It("reports missing accounts", func() {
		_, err := repo.GetByID(ctx, ulid.Make())
		Expect(err).To(MatchError(account.ErrNotFound))

		err = repo.UpdatePassword(ctx, ulid.Make(), "h", time.Now())
		Expect(err).To(MatchError(account.ErrNotFound))
	})

	It("reports the applied schema version", func() {
		m, err := postgres.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = m.Close() }()

		version, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())

		pending, err := m.Pending()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})
})
