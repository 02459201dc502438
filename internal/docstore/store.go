// Package docstore keeps named documents in Redis.
//
// A document is a Redis hash. Array fields live in companion sets so that
// union and clear are atomic server-side, and every write bumps the hidden
// "_rev" field of the owning hash so a WATCH on the hash covers its arrays
// too. Writers publish a change notification per document, which is what
// Subscribe listens to.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrTxConflict = errors.New("transaction conflict")
)

const (
	fieldID       = "_id"
	fieldRevision = "_rev"

	maxTxAttempts = 8
)

// Ref names a document inside a collection.
type Ref struct {
	Collection string
	ID         string
}

func (r Ref) String() string { return r.Collection + "/" + r.ID }

// Fields is a partial document used for writes. Values are encoded with
// encodeValue.
type Fields map[string]any

type Store struct {
	rdb    *redis.Client
	prefix string
}

// Open connects to redisURL and checks the connection.
func Open(redisURL, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewWithClient(client, prefix), nil
}

// NewWithClient creates a store from an existing Redis client.
func NewWithClient(client *redis.Client, prefix string) *Store {
	return &Store{rdb: client, prefix: prefix}
}

// Client exposes the underlying connection for components that keep their
// own keys next to the documents (the race journal).
func (s *Store) Client() *redis.Client { return s.rdb }

// Prefix is prepended to every key the store writes.
func (s *Store) Prefix() string { return s.prefix }

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *Store) docKey(r Ref) string { return s.prefix + r.Collection + "/" + r.ID }

// arrayIndexKey holds the names of the array fields a document owns.
func (s *Store) arrayIndexKey(r Ref) string { return s.docKey(r) + "#" }

func (s *Store) arrayKey(r Ref, field string) string { return s.docKey(r) + "#" + field }

func (s *Store) collectionKey(c string) string { return s.prefix + "coll:" + c }

func (s *Store) channel(r Ref) string { return s.prefix + "changes:" + r.String() }

// Get reads one document.
func (s *Store) Get(ctx context.Context, ref Ref) (Doc, error) {
	m, err := s.rdb.HGetAll(ctx, s.docKey(ref)).Result()
	if err != nil {
		return Doc{}, fmt.Errorf("get %s: %w", ref, err)
	}
	if len(m) == 0 {
		return Doc{}, fmt.Errorf("get %s: %w", ref, ErrNotFound)
	}
	return Doc{Ref: ref, Fields: m}, nil
}

func (s *Store) Exists(ctx context.Context, ref Ref) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.docKey(ref)).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", ref, err)
	}
	return n == 1, nil
}

// Set replaces a document, dropping its previous fields and arrays.
func (s *Store) Set(ctx context.Context, ref Ref, fields Fields) error {
	args := []any{ref.ID}
	args = append(args, flatten(withID(ref, fields))...)
	keys := []string{s.docKey(ref), s.arrayIndexKey(ref), s.collectionKey(ref.Collection)}
	if err := setScript.Run(ctx, s.rdb, keys, args...).Err(); err != nil {
		return fmt.Errorf("set %s: %w", ref, err)
	}
	return s.notify(ctx, ref, ChangeUpdated)
}

// Update writes fields of an existing document. It fails with ErrNotFound
// when the document does not exist.
func (s *Store) Update(ctx context.Context, ref Ref, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	err := updateScript.Run(ctx, s.rdb, []string{s.docKey(ref)}, flatten(fields)...).Err()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("update %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", ref, err)
	}
	return s.notify(ctx, ref, ChangeUpdated)
}

// ArrayUnion adds members to an array field and returns the array size.
func (s *Store) ArrayUnion(ctx context.Context, ref Ref, field string, members ...string) (int, error) {
	if len(members) == 0 {
		n, err := s.rdb.SCard(ctx, s.arrayKey(ref, field)).Result()
		return int(n), err
	}
	args := []any{field}
	for _, m := range members {
		args = append(args, m)
	}
	keys := []string{s.docKey(ref), s.arrayKey(ref, field), s.arrayIndexKey(ref)}
	n, err := arrayUnionScript.Run(ctx, s.rdb, keys, args...).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("array union %s.%s: %w", ref, field, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("array union %s.%s: %w", ref, field, err)
	}
	return int(n), s.notify(ctx, ref, ChangeUpdated)
}

// ArrayMembers returns the members of an array field, sorted.
func (s *Store) ArrayMembers(ctx context.Context, ref Ref, field string) ([]string, error) {
	out, err := s.rdb.SMembers(ctx, s.arrayKey(ref, field)).Result()
	if err != nil {
		return nil, fmt.Errorf("array members %s.%s: %w", ref, field, err)
	}
	sort.Strings(out)
	return out, nil
}

// Increment atomically adds by to an integer field and returns the new value.
func (s *Store) Increment(ctx context.Context, ref Ref, field string, by int64) (int64, error) {
	n, err := incrementScript.Run(ctx, s.rdb, []string{s.docKey(ref)}, field, by).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("increment %s.%s: %w", ref, field, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment %s.%s: %w", ref, field, err)
	}
	return n, s.notify(ctx, ref, ChangeUpdated)
}

// Delete removes a document and its arrays. Deleting a missing document is
// not an error.
func (s *Store) Delete(ctx context.Context, ref Ref) error {
	keys := []string{s.docKey(ref), s.arrayIndexKey(ref), s.collectionKey(ref.Collection)}
	n, err := deleteScript.Run(ctx, s.rdb, keys, ref.ID).Int64()
	if err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	if n == 0 {
		return nil
	}
	return s.notify(ctx, ref, ChangeDeleted)
}

// List returns every document of a collection ordered by ID.
func (s *Store) List(ctx context.Context, collection string) ([]Doc, error) {
	ids, err := s.rdb.SMembers(ctx, s.collectionKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	sort.Strings(ids)

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, s.docKey(Ref{Collection: collection, ID: id}))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	docs := make([]Doc, 0, len(ids))
	for i, id := range ids {
		m := cmds[i].Val()
		if len(m) == 0 {
			continue
		}
		docs = append(docs, Doc{Ref: Ref{Collection: collection, ID: id}, Fields: m})
	}
	return docs, nil
}

// DeleteAll removes every document of a collection.
func (s *Store) DeleteAll(ctx context.Context, collection string) error {
	ids, err := s.rdb.SMembers(ctx, s.collectionKey(collection)).Result()
	if err != nil {
		return fmt.Errorf("delete all %s: %w", collection, err)
	}
	for _, id := range ids {
		if err := s.Delete(ctx, Ref{Collection: collection, ID: id}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) notify(ctx context.Context, ref Ref, kind ChangeKind) error {
	if err := s.rdb.Publish(ctx, s.channel(ref), string(kind)).Err(); err != nil {
		return fmt.Errorf("notify %s: %w", ref, err)
	}
	return nil
}

func withID(ref Ref, fields Fields) Fields {
	out := make(Fields, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[fieldID] = ref.ID
	return out
}

// flatten turns fields into HSET arguments in a stable order.
func flatten(fields Fields) []any {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]any, 0, 2*len(names))
	for _, k := range names {
		out = append(out, k, encodeValue(fields[k]))
	}
	return out
}
