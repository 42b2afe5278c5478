// Package userstore persists the users who have talked to the bot and a
// small set of named usage counters.
package userstore

import (
	"context"
	"errors"
	"iter"
	"time"
)

// CounterFilesProcessed counts accepted uploads.
const CounterFilesProcessed = "files_processed"

// ErrInvalidUser is returned when a user without an id is stored.
var ErrInvalidUser = errors.New("userstore: user id is required")

// User is one known chat user.
type User struct {
	ID        int64     `dynamodbav:"id"`
	FirstName string    `dynamodbav:"first_name"`
	Username  string    `dynamodbav:"username"`
	JoinedAt  time.Time `dynamodbav:"joined_at"`
}

// Counter is a set of named, atomically incremented counters.
type Counter interface {
	// Increment adds one to the named counter and returns the new value.
	Increment(ctx context.Context, name string) (int64, error)
	// Value returns the current value; unknown counters are zero.
	Value(ctx context.Context, name string) (int64, error)
}

// Store is the persistent user store.
type Store interface {
	// Upsert inserts u or refreshes its names. JoinedAt of an existing
	// user never changes; a zero JoinedAt on insert means now.
	Upsert(ctx context.Context, u User) error
	Exists(ctx context.Context, id int64) (bool, error)
	// Delete removes a user. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id int64) error
	// All lazily walks every user. Iteration stops at the first error,
	// which is yielded with a zero User. Deleting users while iterating
	// is allowed.
	All(ctx context.Context) iter.Seq2[User, error]
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error

	Counter
}

type pinger interface {
	Ping(ctx context.Context) error
}

type closer interface {
	Close() error
}

type countedStore struct {
	Store
	counter Counter
}

// WithCounter returns a Store whose counters are served by counter instead
// of the store's own. Ping and Close reach both when counter supports them.
func WithCounter(s Store, counter Counter) Store {
	if counter == nil {
		return s
	}
	return &countedStore{Store: s, counter: counter}
}

func (c *countedStore) Increment(ctx context.Context, name string) (int64, error) {
	return c.counter.Increment(ctx, name)
}

func (c *countedStore) Value(ctx context.Context, name string) (int64, error) {
	return c.counter.Value(ctx, name)
}

func (c *countedStore) Ping(ctx context.Context) error {
	if err := c.Store.Ping(ctx); err != nil {
		return err
	}
	if p, ok := c.counter.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *countedStore) Close() error {
	err := c.Store.Close()
	if cl, ok := c.counter.(closer); ok {
		err = errors.Join(err, cl.Close())
	}
	return err
}
