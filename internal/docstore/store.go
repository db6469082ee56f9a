// Package docstore is a small document store over the shared SQLite
// database. Documents are JSON objects grouped into named collections and
// queried with a Mongo-style filter dialect (see Compile).
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is a decoded JSON object. Its "id" field mirrors the row key.
type Document map[string]any

// SortField orders results by a (dotted) field.
type SortField struct {
	Field string
	Desc  bool
}

// FindOptions controls Find. Limit <= 0 means no limit.
type FindOptions struct {
	Filter     map[string]any
	Sort       []SortField
	Limit      int
	Projection []string
}

// Store reads and writes documents.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a Store over an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Insert stores doc in collection and returns its id. An existing "id"
// (or "_id") string field is used as the key, otherwise a uuid is assigned.
// Inserting an existing id replaces the document.
func (s *Store) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	n, ids, err := s.insert(ctx, s.db, collection, []Document{doc})
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("insert into %s: no rows written", collection)
	}
	return ids[0], nil
}

// InsertMany stores docs in one transaction and returns the number written.
func (s *Store) InsertMany(ctx context.Context, collection string, docs []Document) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	n, _, err := s.insert(ctx, tx, collection, docs)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insert(ctx context.Context, ex execer, collection string, docs []Document) (int, []string, error) {
	if collection == "" {
		return 0, nil, fmt.Errorf("collection name is required")
	}
	ids := make([]string, 0, len(docs))
	now := s.now().UnixMilli()
	for _, doc := range docs {
		id := documentID(doc)
		body := make(Document, len(doc))
		for k, v := range doc {
			if k == "id" || k == "_id" {
				continue
			}
			body[k] = v
		}
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal document %s: %w", id, err)
		}
		_, err = ex.ExecContext(ctx, `
INSERT INTO documents (collection, id, data, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data`, collection, id, string(data), now)
		if err != nil {
			return 0, nil, fmt.Errorf("insert into %s: %w", collection, err)
		}
		ids = append(ids, id)
	}
	return len(ids), ids, nil
}

func documentID(doc Document) string {
	for _, key := range []string{"id", "_id"} {
		switch v := doc[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return uuid.NewString()
}

// Clear deletes every document in collection and returns the count removed.
func (s *Store) Clear(ctx context.Context, collection string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", collection, err)
	}
	return res.RowsAffected()
}

// Find returns documents of collection matching opts.
func (s *Store) Find(ctx context.Context, collection string, opts FindOptions) ([]Document, error) {
	matcher, err := Compile(opts.Filter)
	if err != nil {
		return nil, err
	}

	docs, err := s.scan(ctx, collection, matcher)
	if err != nil {
		return nil, err
	}

	if len(opts.Sort) > 0 {
		SortDocuments(docs, opts.Sort)
	}
	if opts.Limit > 0 && len(docs) > opts.Limit {
		docs = docs[:opts.Limit]
	}
	if len(opts.Projection) > 0 {
		for i, d := range docs {
			docs[i] = Project(d, opts.Projection)
		}
	}
	return docs, nil
}

// Count returns the number of documents of collection matching filter.
func (s *Store) Count(ctx context.Context, collection string, filter map[string]any) (int, error) {
	matcher, err := Compile(filter)
	if err != nil {
		return 0, err
	}
	docs, err := s.scan(ctx, collection, matcher)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (s *Store) scan(ctx context.Context, collection string, matcher Matcher) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM documents WHERE collection = ? ORDER BY created_at, id`, collection)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		doc := Document{}
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		doc["id"] = id
		if matcher.Match(doc) {
			out = append(out, doc)
		}
	}
	return out, rows.Err()
}

// SortDocuments sorts docs in place by fields, nil/missing values first.
func SortDocuments(docs []Document, fields []SortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, okA := Lookup(docs[i], f.Field)
			b, okB := Lookup(docs[j], f.Field)
			var c int
			switch {
			case !okA && !okB:
				c = 0
			case !okA:
				c = -1
			case !okB:
				c = 1
			default:
				var ok bool
				c, ok = compareValues(a, b)
				if !ok {
					c = strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
				}
			}
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Project keeps only the listed (dotted) fields plus "id".
func Project(doc Document, fields []string) Document {
	out := Document{"id": doc["id"]}
	for _, f := range fields {
		v, ok := Lookup(doc, f)
		if !ok {
			continue
		}
		setPath(out, f, v)
	}
	return out
}

func setPath(doc Document, path string, v any) {
	parts := strings.Split(path, ".")
	cur := map[string]any(doc)
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}
