// Package redis implements the vector store over Redis 8+ with RediSearch:
// chunk records live in hashes under one key prefix, KNN search and filtered
// lookups go through FT.SEARCH.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/paperqa/paperqa/internal/store"
)

// Compile-time check: Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs      []string
	Username   string
	Password   string
	DB         int
	Collection string
	Timeout    time.Duration // per external call
}

// Store implements store.Store via rueidis.
type Store struct {
	client     rueidis.Client
	collection string
	timeout    time.Duration
}

// NewStore creates a Redis driver.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client, collection: cfg.Collection, timeout: timeout}, nil
}

func (s *Store) indexName() string { return s.collection + "_idx" }
func (s *Store) keyPrefix() string { return s.collection + ":" }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// EnsureCollection creates the HNSW index over the record hashes if it does
// not exist yet.
func (s *Store) EnsureCollection(ctx context.Context, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("invalid vector size %d", vectorSize)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	info := s.client.B().Arbitrary("FT.INFO").Args(s.indexName()).Build()
	if err := s.client.Do(ctx, info).Error(); err == nil {
		return nil
	} else if !isRedisErr(err, "unknown index name") && !isRedisErr(err, "no such index") {
		return store.WrapRead("FT.INFO", err)
	}

	args := []string{
		s.indexName(), "ON", "HASH", "PREFIX", "1", s.keyPrefix(), "SCHEMA",
		"filename", "TAG",
		"file_id", "TAG",
		"chunk_index", "NUMERIC",
		"text", "TEXT",
		"vector", "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(vectorSize),
		"DISTANCE_METRIC", "COSINE",
	}
	create := s.client.B().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.client.Do(ctx, create).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return store.WrapWrite("FT.CREATE", err)
	}
	return nil
}

// Upsert writes all records in one pipelined round-trip. Redis acknowledges
// hash writes only after they are applied, which satisfies the durable-write
// contract for a single node.
func (s *Store) Upsert(ctx context.Context, records []store.Record) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cmds := make([]rueidis.Completed, len(records))
	for i, r := range records {
		cmds[i] = s.client.B().Hset().Key(s.keyPrefix() + r.ID).FieldValue().
			FieldValue("text", r.Payload.Text).
			FieldValue("filename", r.Payload.Filename).
			FieldValue("file_id", r.Payload.FileID).
			FieldValue("chunk_index", strconv.Itoa(r.Payload.ChunkIndex)).
			FieldValue("vector", vectorToBytes(r.Vector)).
			Build()
	}

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return store.WrapWrite(fmt.Sprintf("HSET %s", records[i].ID), err)
		}
	}
	return nil
}

var returnFields = []string{"text", "filename", "file_id", "chunk_index"}

// Search runs a KNN query and converts cosine distance to similarity.
func (s *Store) Search(ctx context.Context, vector []float32, limit int) ([]store.Hit, error) {
	if limit <= 0 {
		limit = 5
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	args := []string{
		s.indexName(),
		fmt.Sprintf("*=>[KNN %d @vector $BLOB]", limit),
		"RETURN", strconv.Itoa(len(returnFields) + 1),
	}
	args = append(args, returnFields...)
	args = append(args, "__vector_score",
		"SORTBY", "__vector_score",
		"LIMIT", "0", strconv.Itoa(limit),
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	)

	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, store.WrapRead("FT.SEARCH knn", err)
	}

	entries, _ := parseSearchEntries(raw)
	hits := make([]store.Hit, 0, len(entries))
	for _, e := range entries {
		score := 0.0
		if d, err := strconv.ParseFloat(e.fields["__vector_score"], 64); err == nil {
			// cosine distance -> similarity, clamped to [0,1]
			score = max(0, 1.0-d)
		}
		hits = append(hits, store.Hit{
			ID:      s.recordID(e.key),
			Score:   score,
			Payload: payloadFromFields(e.fields),
		})
	}
	return hits, nil
}

// Scroll pages through all records via paginated FT.SEARCH. The cursor is the
// numeric offset of the next page.
func (s *Store) Scroll(ctx context.Context, cursor string, limit int) ([]store.Record, string, error) {
	if limit <= 0 {
		limit = 1000
	}
	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", store.WrapRead("scroll", fmt.Errorf("invalid cursor %q: %w", cursor, err))
		}
		offset = parsed
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	args := []string{
		s.indexName(), "*",
		"RETURN", strconv.Itoa(len(returnFields)),
	}
	args = append(args, returnFields...)
	args = append(args, "LIMIT", strconv.Itoa(offset), strconv.Itoa(limit))

	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, "", store.WrapRead("FT.SEARCH scroll", err)
	}

	entries, total := parseSearchEntries(raw)
	records := make([]store.Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, store.Record{
			ID:      s.recordID(e.key),
			Payload: payloadFromFields(e.fields),
		})
	}

	next := ""
	if offset+len(entries) < total && len(entries) > 0 {
		next = strconv.Itoa(offset + len(entries))
	}
	return records, next, nil
}

// FilenameExists checks for an exact tag match without fetching payloads.
func (s *Store) FilenameExists(ctx context.Context, filename string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf("@filename:{%s}", escapeTag(filename))
	cmd := s.client.B().Arbitrary("FT.SEARCH").
		Args(s.indexName(), query, "LIMIT", "0", "0", "DIALECT", "2").Build()
	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return false, store.WrapRead("FT.SEARCH filename", err)
	}
	if len(raw) == 0 {
		return false, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return false, store.WrapRead("FT.SEARCH filename", fmt.Errorf("parse total: %w", err))
	}
	return total > 0, nil
}

// DeleteByFileID finds all keys of one file and removes them in a single
// pipelined round-trip.
func (s *Store) DeleteByFileID(ctx context.Context, fileID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf("@file_id:{%s}", escapeTag(fileID))
	var keys []string
	offset := 0
	for {
		cmd := s.client.B().Arbitrary("FT.SEARCH").
			Args(s.indexName(), query, "RETURN", "0",
				"LIMIT", strconv.Itoa(offset), "1000", "DIALECT", "2").Build()
		raw, err := s.client.Do(ctx, cmd).ToArray()
		if err != nil {
			return store.WrapRead("FT.SEARCH file_id", err)
		}
		if len(raw) == 0 {
			break
		}
		total, _ := raw[0].AsInt64()
		// RETURN 0 yields just keys: [total, key1, key2, ...]
		for i := 1; i < len(raw); i++ {
			key, err := raw[i].ToString()
			if err != nil {
				continue
			}
			keys = append(keys, key)
		}
		offset = len(keys)
		if offset >= int(total) || len(raw) <= 1 {
			break
		}
	}
	if len(keys) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = s.client.B().Del().Key(key).Build()
	}
	for _, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return store.WrapRead("DEL", err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return store.WrapRead("PING", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// recordID strips the key prefix back off a hash key.
func (s *Store) recordID(key string) string {
	prefix := s.keyPrefix()
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return key
}

type searchEntry struct {
	key    string
	fields map[string]string
}

// parseSearchEntries decodes the RESP2 FT.SEARCH reply:
// [total, key1, fields1, key2, fields2, ...].
func parseSearchEntries(raw []rueidis.RedisMessage) ([]searchEntry, int) {
	if len(raw) == 0 {
		return nil, 0
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, 0
	}

	entries := make([]searchEntry, 0, (len(raw)-1)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fieldArr, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		fields := make(map[string]string, len(fieldArr)/2)
		for j := 0; j+1 < len(fieldArr); j += 2 {
			name, err := fieldArr[j].ToString()
			if err != nil {
				continue
			}
			value, err := fieldArr[j+1].ToString()
			if err != nil {
				continue
			}
			fields[name] = value
		}
		entries = append(entries, searchEntry{key: key, fields: fields})
	}
	return entries, int(total)
}

func payloadFromFields(fields map[string]string) store.Payload {
	idx := 0
	if v, err := strconv.Atoi(fields["chunk_index"]); err == nil {
		idx = v
	}
	return store.Payload{
		Text:       fields["text"],
		ChunkIndex: idx,
		Filename:   fields["filename"],
		FileID:     fields["file_id"],
	}
}

// isRedisErr checks if err is a Redis server error containing substr
// (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return containsIgnoreCase(re.Error(), substr)
}

func containsIgnoreCase(s, substr string) bool {
	ls, lsub := len(s), len(substr)
	if lsub > ls {
		return false
	}
	for i := 0; i <= ls-lsub; i++ {
		match := true
		for j := 0; j < lsub; j++ {
			sc, tc := s[i+j], substr[j]
			if sc >= 'A' && sc <= 'Z' {
				sc += 'a' - 'A'
			}
			if tc >= 'A' && tc <= 'Z' {
				tc += 'a' - 'A'
			}
			if sc != tc {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
