// Package dsstore is a DurableStore kept in Cloud Datastore.
//
// Every entry is an entity of kind Population whose name key is the normalized key.
package dsstore

import (
	"context"
	"errors"

	"go.mercari.io/datastore"
	"go.mercari.io/datastore/clouddatastore"
	"go.mercari.io/datastore/dsmiddleware/dslog"
	"go.mercari.io/popcache"
	"google.golang.org/api/iterator"
)

// Kind is the entity kind of the entries.
const Kind = "Population"

// deleteBatchSize is the most keys Datastore accepts in one commit.
const deleteBatchSize = 500

var _ popcache.DurableStore = (*Store)(nil)

type entity struct {
	Value int64 `datastore:",noindex"`
}

// Store implements popcache.DurableStore over a go.mercari.io/datastore client.
type Store struct {
	client datastore.Client
	kind   string
	logf   func(ctx context.Context, format string, args ...interface{})
}

// Open connects to Cloud Datastore, or its emulator when DATASTORE_EMULATOR_HOST is set.
func Open(ctx context.Context, projectID string, opts ...StoreOption) (*Store, error) {
	var clientOpts []datastore.ClientOption
	if projectID != "" {
		clientOpts = append(clientOpts, datastore.WithProjectID(projectID))
	}
	client, err := clouddatastore.FromContext(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}
	return New(client, opts...), nil
}

// New wraps an existing client. Close closes the client.
func New(client datastore.Client, opts ...StoreOption) *Store {
	s := &Store{
		client: client,
		kind:   Kind,
	}
	for _, opt := range opts {
		opt.Apply(s)
	}

	if s.logf != nil {
		client.AppendMiddleware(dslog.NewLogger("storage/dsstore: ", s.logf))
	}

	return s
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) nameKey(key popcache.Key) datastore.Key {
	return s.client.NameKey(s.kind, string(key), nil)
}

func (s *Store) Keys(ctx context.Context) ([]popcache.Key, error) {
	dsKeys, err := s.allKeys(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]popcache.Key, 0, len(dsKeys))
	for _, key := range dsKeys {
		keys = append(keys, popcache.Key(key.Name()))
	}
	return keys, nil
}

func (s *Store) allKeys(ctx context.Context) ([]datastore.Key, error) {
	q := s.client.NewQuery(s.kind).KeysOnly()
	it := s.client.Run(ctx, q)

	var keys []datastore.Key
	for {
		key, err := it.Next(nil)
		if err == iterator.Done {
			break
		} else if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Store) GetItem(ctx context.Context, key popcache.Key) (int64, bool, error) {
	e := &entity{}
	err := s.client.Get(ctx, s.nameKey(key), e)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	return e.Value, true, nil
}

func (s *Store) SetItem(ctx context.Context, key popcache.Key, value int64) error {
	_, err := s.client.Put(ctx, s.nameKey(key), &entity{Value: value})
	return err
}

func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.allKeys(ctx)
	if err != nil {
		return err
	}

	for len(keys) != 0 {
		n := deleteBatchSize
		if len(keys) < n {
			n = len(keys)
		}
		if err := s.client.DeleteMulti(ctx, keys[:n]); err != nil {
			return err
		}
		keys = keys[n:]
	}
	return nil
}
