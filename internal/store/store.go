// Package store keeps a LevelDB history of finished search runs, so repeated
// attacks on the same ciphertext can be compared across seeds, key lengths and
// half-lives.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/haricheung/cribcrack/internal/types"
)

// LevelDB key prefix scheme. "|" separates parts; digests and ids never contain it.
//
//	r|<id>                              → RunRecord JSON   (primary record)
//	c|<digest>|<key_length:04d>|<id>    → nil              (ciphertext index)
//	t|<created_at sortable>|<id>        → nil              (time index, oldest first)
const (
	prefixRun    = "r|"
	prefixCipher = "c|"
	prefixTime   = "t|"
)

// timeKeyLayout is fixed width so lexical order equals chronological order.
const timeKeyLayout = "20060102T150405.000000000Z"

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("store: run not found")

// Store is the LevelDB-backed run history. Safe for concurrent use; LevelDB
// serialises writers internally.
type Store struct {
	db *leveldb.DB
}

// Open opens (or creates) the history database in directory dir.
// LevelDB is single-process: a second cribcrack holding the same dir fails here.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open run history %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Digest returns the hex sha256 of a ciphertext, the key under which its runs are indexed.
func Digest(ciphertext []byte) string {
	sum := sha256.Sum256(ciphertext)
	return hex.EncodeToString(sum[:])
}

// Put persists rec and its index entries atomically and returns the stored record.
//
// Expectations:
//   - Assigns a UUID when rec.ID is empty
//   - Assigns CreatedAt (UTC now) when zero
//   - Overwrites an existing record with the same ID, replacing its index entries
func (s *Store) Put(rec types.RunRecord) (types.RunRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("marshal run %s: %w", rec.ID, err)
	}

	batch := new(leveldb.Batch)
	if old, err := s.Get(rec.ID); err == nil {
		batch.Delete([]byte(cipherKey(old)))
		batch.Delete([]byte(timeKey(old)))
	}
	batch.Put([]byte(prefixRun+rec.ID), data)
	batch.Put([]byte(cipherKey(rec)), nil)
	batch.Put([]byte(timeKey(rec)), nil)
	if err := s.db.Write(batch, nil); err != nil {
		return rec, fmt.Errorf("persist run %s: %w", rec.ID, err)
	}
	slog.Info("[STORE] persisted run", "id", rec.ID, "key_length", rec.Params.KeyLength, "score", rec.Score, "status", rec.Status)
	return rec, nil
}

// Get returns the run with the given id, or ErrNotFound.
func (s *Store) Get(id string) (types.RunRecord, error) {
	data, err := s.db.Get([]byte(prefixRun+id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return types.RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return types.RunRecord{}, err
	}
	var rec types.RunRecord
	return rec, json.Unmarshal(data, &rec)
}

// Delete removes a run and its index entries. Unknown ids are a no-op.
func (s *Store) Delete(id string) error {
	rec, err := s.Get(id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Delete([]byte(prefixRun + id))
	batch.Delete([]byte(cipherKey(rec)))
	batch.Delete([]byte(timeKey(rec)))
	return s.db.Write(batch, nil)
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
//
// Expectations:
//   - Total counts every stored run regardless of limit
//   - Runs are ordered by CreatedAt descending
func (s *Store) List(limit int) (types.HistorySummary, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixTime)), nil)
	defer iter.Release()

	var sum types.HistorySummary
	for ok := iter.Last(); ok; ok = iter.Prev() {
		sum.Total++
		if limit > 0 && len(sum.Runs) >= limit {
			continue
		}
		id := idFromKey(string(iter.Key()))
		rec, err := s.Get(id)
		if err != nil {
			slog.Warn("[STORE] dangling time index", "id", id, "error", err)
			continue
		}
		sum.Runs = append(sum.Runs, rec)
	}
	return sum, iter.Error()
}

// ByCiphertext returns the runs for a ciphertext digest sorted by score ascending.
// keyLength 0 matches every key length.
func (s *Store) ByCiphertext(digest string, keyLength int) ([]types.RunRecord, error) {
	prefix := prefixCipher + digest + "|"
	if keyLength > 0 {
		prefix += fmt.Sprintf("%04d|", keyLength)
	}
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var out []types.RunRecord
	for iter.Next() {
		rec, err := s.Get(idFromKey(string(iter.Key())))
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out, nil
}

// ---------------------------------------------------------------------------
// Key helpers
// ---------------------------------------------------------------------------

func cipherKey(rec types.RunRecord) string {
	return fmt.Sprintf("%s%s|%04d|%s", prefixCipher, rec.CiphertextDigest, rec.Params.KeyLength, rec.ID)
}

func timeKey(rec types.RunRecord) string {
	return prefixTime + rec.CreatedAt.UTC().Format(timeKeyLayout) + "|" + rec.ID
}

// idFromKey returns the run id, the last "|" separated part of an index key.
func idFromKey(key string) string {
	return key[strings.LastIndex(key, "|")+1:]
}
