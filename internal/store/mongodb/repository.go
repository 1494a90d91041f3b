// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mongodb provides a MongoDB account repository.
package mongodb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/holomush/accountd/internal/account"
)

// CollectionName is the collection holding account documents.
const CollectionName = "users"

// missingHandleKey selects documents written before name_lower existed.
var missingHandleKey = bson.D{{Key: "name_lower", Value: bson.D{{Key: "$exists", Value: false}}}}

// Unique index names created by EnsureIndexes.
const (
	handleIndex = "name_lower_1"
	emailIndex  = "email_1"
)

// collection is the subset of *mongo.Collection the repository needs.
type collection interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error)
}

// document is the stored shape of an account. Field names match the
// collection written by earlier deployments of the service. ID holds a ULID
// string for accounts created here and a bson.ObjectID for older ones.
type document struct {
	ID        any       `bson:"_id"`
	Handle    string    `bson:"name"`
	HandleKey string    `bson:"name_lower"`
	Email     string    `bson:"email"`
	Password  string    `bson:"password"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func toDocument(acct *account.Account) document {
	return document{
		ID:        acct.ID.String(),
		Handle:    acct.Handle,
		HandleKey: strings.ToLower(acct.Handle),
		Email:     acct.Email,
		Password:  acct.PasswordHash,
		CreatedAt: acct.CreatedAt.UTC(),
		UpdatedAt: acct.UpdatedAt.UTC(),
	}
}

func (d document) account() (*account.Account, error) {
	var id ulid.ULID
	switch v := d.ID.(type) {
	case string:
		parsed, err := ulid.Parse(v)
		if err != nil {
			return nil, err
		}
		id = parsed
	case bson.ObjectID:
		id = legacyID(v)
	default:
		return nil, oops.Errorf("unsupported _id type %T", d.ID)
	}
	return &account.Account{
		ID:           id,
		Handle:       d.Handle,
		Email:        d.Email,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

// legacyID maps an ObjectID onto a ULID. The ObjectID's creation second
// becomes the ULID timestamp and its remaining eight bytes fill the start of
// the entropy. The last two bytes stay zero, which makes the mapping
// reversible through objectIDOf.
func legacyID(oid bson.ObjectID) ulid.ULID {
	var id ulid.ULID
	_ = id.SetTime(uint64(binary.BigEndian.Uint32(oid[:4])) * 1000) //nolint:errcheck // 32-bit seconds fit
	copy(id[6:14], oid[4:])
	return id
}

// objectIDOf inverts legacyID. ok is false for IDs legacyID cannot produce.
func objectIDOf(id ulid.ULID) (bson.ObjectID, bool) {
	ms := id.Time()
	if id[14] != 0 || id[15] != 0 || ms%1000 != 0 || ms/1000 > math.MaxUint32 {
		return bson.ObjectID{}, false
	}
	var oid bson.ObjectID
	binary.BigEndian.PutUint32(oid[:4], uint32(ms/1000))
	copy(oid[4:], id[6:14])
	return oid, true
}

// idFilter matches the document of id. An ID that could be a mapped
// ObjectID matches either stored form.
func idFilter(id ulid.ULID) bson.D {
	if oid, ok := objectIDOf(id); ok {
		return bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{id.String(), oid}}}}}
	}
	return bson.D{{Key: "_id", Value: id.String()}}
}

// Repository implements account.Repository using MongoDB.
type Repository struct {
	client *mongo.Client
	coll   collection
}

var _ account.Repository = (*Repository)(nil)

// Open connects to MongoDB at uri, selects database, and ensures the unique
// indexes exist.
func Open(ctx context.Context, uri, database string) (*Repository, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("driver", "mongo").Wrap(err)
	}
	coll := client.Database(database).Collection(CollectionName)
	if err := EnsureIndexes(ctx, coll); err != nil {
		_ = client.Disconnect(ctx) //nolint:errcheck // index error takes precedence
		return nil, err
	}
	return &Repository{client: client, coll: coll}, nil
}

// NewRepository wraps an existing collection. Ping and Close are no-ops
// without a client.
func NewRepository(coll collection) *Repository {
	return &Repository{coll: coll}
}

// EnsureIndexes backfills name_lower on documents that predate it, then
// creates the case-insensitive handle index and the email index. Both are
// unique, so handles differing only in case make the build fail.
func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	backfill := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "name_lower", Value: bson.D{{Key: "$toLower", Value: "$name"}}},
	}}}}
	if _, err := coll.UpdateMany(ctx, missingHandleKey, backfill); err != nil {
		return oops.Code("STORE_INDEX_FAILED").
			With("collection", CollectionName).
			With("operation", "backfill name_lower").
			Wrap(err)
	}

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name_lower", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(handleIndex),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndex),
		},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return oops.Code("STORE_INDEX_FAILED").With("collection", CollectionName).Wrap(err)
	}
	return nil
}

// Ping verifies the primary is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return oops.Code("STORE_UNAVAILABLE").With("driver", "mongo").Wrap(err)
	}
	return nil
}

// Close disconnects the client.
func (r *Repository) Close(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Disconnect(ctx); err != nil {
		return oops.Code("STORE_CLOSE_FAILED").With("driver", "mongo").Wrap(err)
	}
	return nil
}

// Create inserts a new account document.
func (r *Repository) Create(ctx context.Context, acct *account.Account) error {
	_, err := r.coll.InsertOne(ctx, toDocument(acct))
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return oops.Code("ACCOUNT_CONFLICT").
			With("field", conflictField(err)).
			Wrap(account.ErrConflict)
	}
	return oops.Code("ACCOUNT_CREATE_FAILED").
		With("operation", "insert account").
		With("handle", acct.Handle).
		Wrap(err)
}

// conflictField names the key a duplicate-key error collided on. The server
// reports the index name in the error message.
func conflictField(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, handleIndex):
		return "handle"
	case strings.Contains(msg, emailIndex):
		return "email"
	default:
		return "id"
	}
}

// GetByID retrieves an account by ID.
func (r *Repository) GetByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	return r.findOne(ctx, idFilter(id), "id", id.String())
}

// GetByHandle retrieves an account by handle (case-insensitive). Documents
// written without name_lower still match on the exact handle.
func (r *Repository) GetByHandle(ctx context.Context, handle string) (*account.Account, error) {
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "name_lower", Value: strings.ToLower(handle)}},
		append(bson.D{{Key: "name", Value: handle}}, missingHandleKey...),
	}}}
	return r.findOne(ctx, filter, "handle", handle)
}

// GetByEmail retrieves an account by normalized email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}}, "email", email)
}

// UpdatePassword replaces the password hash of the account with id. No
// other field is written.
func (r *Repository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, updatedAt time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		idFilter(id),
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "password", Value: passwordHash},
			{Key: "updatedAt", Value: updatedAt.UTC()},
		}}},
	)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if res.MatchedCount == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(account.ErrNotFound)
	}
	return nil
}

func (r *Repository) findOne(ctx context.Context, filter bson.D, field, value string) (*account.Account, error) {
	var doc document
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With(field, value).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "get account by "+field).
			With(field, value).
			Wrap(err)
	}
	acct, err := doc.account()
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "parse account id").
			With("id", fmt.Sprint(doc.ID)).
			Wrap(err)
	}
	return acct, nil
}
