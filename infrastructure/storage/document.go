package storage

import (
	"bytes"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	bpb "github.com/dgraph-io/badger/v4/pb"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	maxTxnRetries         = 10
	watchMarkerCollection = "_watch"
	watchProbeInterval    = 10 * time.Millisecond
)

// Document is a schemaless record of a collection.
// Deleted is only set on documents observed through Watch.
type Document struct {
	ID      string
	Fields  map[string]any
	Deleted bool
}

// DocumentStore keeps documents in BadgerDB under "{collection}:{id}".
// Values are structpb.Struct encoded with protobuf, so numbers read back as float64.
type DocumentStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewDocumentStore(db *badger.DB, log *slog.Logger) *DocumentStore {
	return &DocumentStore{db: db, log: log}
}

func documentKey(collection, id string) []byte {
	return []byte(collection + ":" + id)
}

func collectionPrefix(collection string) []byte {
	return []byte(collection + ":")
}

// DecodeEntry turns a raw key/value pair back into its collection and document.
func DecodeEntry(key, value []byte) (string, Document, error) {
	collection, id, ok := strings.Cut(string(key), ":")
	if !ok {
		return "", Document{}, fmt.Errorf("malformed key %q", key)
	}
	fields, err := decodeFields(value)
	if err != nil {
		return collection, Document{ID: id}, err
	}
	return collection, Document{ID: id, Fields: fields}, nil
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var fields map[string]any
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(documentKey(collection, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			fields, err = decodeFields(val)
			return err
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return fields, nil
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeFields(fields)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(documentKey(collection, id), data)
	})
}

// Update applies mutate inside a single transaction, creating the document when absent.
// Conflicting concurrent writers are retried, so increments never lose updates.
// If mutate returns errNoChange the transaction is dropped without writing.
func (s *DocumentStore) Update(ctx context.Context, collection, id string, mutate func(fields map[string]any) error) error {
	key := documentKey(collection, id)
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			fields := map[string]any{}
			item, err := txn.Get(key)
			switch {
			case err == nil:
				if err := item.Value(func(val []byte) error {
					fields, err = decodeFields(val)
					return err
				}); err != nil {
					return err
				}
			case !stderrors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			if err := mutate(fields); err != nil {
				return err
			}
			data, err := encodeFields(fields)
			if err != nil {
				return err
			}
			return txn.Set(key, data)
		})
		if stderrors.Is(err, badger.ErrConflict) {
			s.log.Debug("Transaction conflict, retrying", "collection", collection, "id", id, "attempt", attempt)
			continue
		}
		if stderrors.Is(err, errNoChange) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", collection, id, err)
		}
		return nil
	}
	return fmt.Errorf("update %s/%s: %w", collection, id, badger.ErrConflict)
}

var errNoChange = stderrors.New("no change")

// Delete is idempotent.
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(documentKey(collection, id))
	})
}

// List returns documents in key order, or reverse key order when newestFirst is set.
// A limit <= 0 means no limit.
func (s *DocumentStore) List(ctx context.Context, collection string, newestFirst bool, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := collectionPrefix(collection)
	var docs []Document
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = newestFirst
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := prefix
		if newestFirst {
			// Seek lands on the last key of the prefix when iterating backwards
			seekKey = append(append([]byte{}, prefix...), 0xFF)
		}
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(docs) == limit {
				break
			}
			item := it.Item()
			id := string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				fields, err := decodeFields(val)
				if err != nil {
					return err
				}
				docs = append(docs, Document{ID: id, Fields: fields})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return docs, nil
}

// Watch streams every write to the collection until ctx is done or the subscription fails.
// A deletion is reported with an empty Fields map and Deleted set.
// ready, when set, is called once the subscription is registered: every write committed
// after that call reaches fn.
func (s *DocumentStore) Watch(ctx context.Context, collection string, ready func(), fn func(Document)) error {
	prefix := collectionPrefix(collection)
	marker := []byte(watchMarkerCollection + ":" + uuid.NewString())
	registered := make(chan struct{})
	var once sync.Once
	confirm := func() {
		once.Do(func() {
			close(registered)
			if ready != nil {
				ready()
			}
		})
	}

	probeCtx, stopProbe := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.probeSubscription(probeCtx, marker, registered)
	}()

	err := s.db.Subscribe(ctx, func(kvs *badger.KVList) error {
		for _, kv := range kvs.GetKv() {
			if bytes.Equal(kv.GetKey(), marker) {
				confirm()
				continue
			}
			doc := Document{ID: string(kv.GetKey()[len(prefix):])}
			if len(kv.GetValue()) == 0 {
				doc.Deleted = true
				doc.Fields = map[string]any{}
			} else {
				fields, err := decodeFields(kv.GetValue())
				if err != nil {
					s.log.Warn("Skipping undecodable document", "collection", collection, "id", doc.ID, "error", err)
					continue
				}
				doc.Fields = fields
			}
			fn(doc)
		}
		return nil
	}, []bpb.Match{{Prefix: prefix}, {Prefix: marker}})
	stopProbe()
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return errors.ErrSubscriptionClosed
	}
	return fmt.Errorf("watch %s: %w", collection, err)
}

// probeSubscription writes the marker key until the subscriber sees it come back.
// Badger only publishes to registered subscribers, so the first echo proves registration.
func (s *DocumentStore) probeSubscription(ctx context.Context, marker []byte, registered <-chan struct{}) {
	ticker := time.NewTicker(watchProbeInterval)
	defer ticker.Stop()
	for {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(marker, nil).WithTTL(time.Minute))
		})
		if err != nil {
			s.log.Debug("Failed to write watch marker", "error", err)
		}
		select {
		case <-registered:
			_ = s.db.Update(func(txn *badger.Txn) error { return txn.Delete(marker) })
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Count returns the number of documents whose id starts with idPrefix.
func (s *DocumentStore) Count(ctx context.Context, collection, idPrefix string) (int, error) {
	ids, err := s.IDs(ctx, collection, idPrefix)
	return len(ids), err
}

// IDs lists document ids in key order without reading values.
func (s *DocumentStore) IDs(ctx context.Context, collection, idPrefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := collectionPrefix(collection)
	scan := append(append([]byte{}, prefix...), idPrefix...)
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = scan
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(scan); it.ValidForPrefix(scan); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ids %s: %w", collection, err)
	}
	return ids, nil
}

func encodeFields(fields map[string]any) ([]byte, error) {
	st, err := structpb.NewStruct(normalize(fields).(map[string]any))
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func decodeFields(data []byte) (map[string]any, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return st.AsMap(), nil
}

// normalize converts values structpb cannot take directly.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[string]int:
		return lo.MapValues(t, func(n int, _ string) any { return n })
	case map[string]bool:
		return lo.MapValues(t, func(b bool, _ string) any { return b })
	case map[string]string:
		return lo.MapValues(t, func(s string, _ string) any { return s })
	case []string:
		return lo.ToAnySlice(t)
	case []any:
		return lo.Map(t, func(item any, _ int) any { return normalize(item) })
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *string:
		if t == nil {
			return nil
		}
		return *t
	default:
		return v
	}
}

func stringField(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}

func intField(fields map[string]any, name string) int {
	switch n := fields[name].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func timeField(fields map[string]any, name string) time.Time {
	s, ok := fields[name].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func mapField(fields map[string]any, name string) map[string]any {
	m, ok := fields[name].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

func stringSliceField(fields map[string]any, name string) []string {
	items, ok := fields[name].([]any)
	if !ok {
		return nil
	}
	return lo.FilterMap(items, func(item any, _ int) (string, bool) {
		s, ok := item.(string)
		return s, ok
	})
}

// Create writes the document only when it does not exist yet.
func (s *DocumentStore) Create(ctx context.Context, collection, id string, fields map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	data, err := encodeFields(fields)
	if err != nil {
		return false, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	created := false
	err = s.db.Update(func(txn *badger.Txn) error {
		key := documentKey(collection, id)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		created = true
		return txn.Set(key, data)
	})
	if err != nil {
		return false, fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	return created, nil
}

// DeleteIfExists deletes the document and reports whether it was present.
// Nothing is written for an absent document, so watchers see no event.
func (s *DocumentStore) DeleteIfExists(ctx context.Context, collection, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := documentKey(collection, id)
		if _, err := txn.Get(key); err != nil {
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		deleted = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return deleted, nil
}
