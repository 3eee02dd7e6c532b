// Package qdrant is a minimal REST driver for the Qdrant points API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paperqa/paperqa/internal/store"
)

// Compile-time check: Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Config holds connection parameters for a Qdrant store.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration // per external call
}

// Store talks to one Qdrant collection over HTTP. Cosine distance is assumed.
type Store struct {
	url        string
	apiKey     string
	collection string
	timeout    time.Duration
	client     *http.Client
}

// NewStore creates a Qdrant driver.
func NewStore(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		timeout:    timeout,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

type payloadDoc struct {
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
	Filename   string `json:"filename"`
	FileID     string `json:"file_id"`
}

// EnsureCollection creates the collection with cosine distance if absent.
func (s *Store) EnsureCollection(ctx context.Context, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("invalid vector size %d", vectorSize)
	}

	var existsResp struct {
		Result struct {
			Exists bool `json:"exists"`
		} `json:"result"`
	}
	err := s.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("%s/collections/%s/exists", s.url, s.collection), nil, &existsResp)
	if err != nil {
		return store.WrapRead("collection exists", err)
	}
	if existsResp.Result.Exists {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
		"on_disk_payload": true,
	}
	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection)
	if err := s.doJSON(ctx, http.MethodPut, url, body, nil); err != nil {
		return store.WrapWrite("create collection", err)
	}
	return nil
}

// Upsert writes records with wait=true so the acknowledgment confirms
// durability.
func (s *Store) Upsert(ctx context.Context, records []store.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":     r.ID,
			"vector": r.Vector,
			"payload": payloadDoc{
				Text:       r.Payload.Text,
				ChunkIndex: r.Payload.ChunkIndex,
				Filename:   r.Payload.Filename,
				FileID:     r.Payload.FileID,
			},
		}
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection)
	if err := s.doJSON(ctx, http.MethodPut, url, map[string]any{"points": points}, nil); err != nil {
		return store.WrapWrite("upsert points", err)
	}
	return nil
}

// Search returns the top-limit hits by descending score, payloads included.
func (s *Store) Search(ctx context.Context, vector []float32, limit int) ([]store.Hit, error) {
	if limit <= 0 {
		limit = 5
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	var resp struct {
		Result []struct {
			ID      string     `json:"id"`
			Score   float64    `json:"score"`
			Payload payloadDoc `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection)
	if err := s.doJSON(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, store.WrapRead("search points", err)
	}

	hits := make([]store.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, store.Hit{
			ID:      r.ID,
			Score:   r.Score,
			Payload: store.Payload(r.Payload),
		})
	}
	return hits, nil
}

// Scroll pages through the collection. The cursor is Qdrant's next_page_offset
// carried verbatim as raw JSON.
func (s *Store) Scroll(ctx context.Context, cursor string, limit int) ([]store.Record, string, error) {
	req := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if cursor != "" {
		req["offset"] = json.RawMessage(cursor)
	}

	var resp struct {
		Result struct {
			Points []struct {
				ID      string     `json:"id"`
				Payload payloadDoc `json:"payload"`
			} `json:"points"`
			NextPageOffset json.RawMessage `json:"next_page_offset"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/scroll", s.url, s.collection)
	if err := s.doJSON(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, "", store.WrapRead("scroll points", err)
	}

	records := make([]store.Record, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		records = append(records, store.Record{
			ID:      p.ID,
			Payload: store.Payload(p.Payload),
		})
	}

	next := string(resp.Result.NextPageOffset)
	if next == "null" {
		next = ""
	}
	return records, next, nil
}

// FilenameExists checks for an exact filename match, limit 1, no payloads.
func (s *Store) FilenameExists(ctx context.Context, filename string) (bool, error) {
	req := map[string]any{
		"filter":       matchFilter("filename", filename),
		"limit":        1,
		"with_payload": false,
		"with_vector":  false,
	}
	var resp struct {
		Result struct {
			Points []struct {
				ID string `json:"id"`
			} `json:"points"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/scroll", s.url, s.collection)
	if err := s.doJSON(ctx, http.MethodPost, url, req, &resp); err != nil {
		return false, store.WrapRead("filename exists", err)
	}
	return len(resp.Result.Points) > 0, nil
}

// DeleteByFileID removes all points of one file with wait=true.
func (s *Store) DeleteByFileID(ctx context.Context, fileID string) error {
	req := map[string]any{
		"filter": matchFilter("file_id", fileID),
	}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection)
	if err := s.doJSON(ctx, http.MethodPost, url, req, nil); err != nil {
		return store.WrapRead("delete points", err)
	}
	return nil
}

// Ping checks API reachability via the collections listing.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.doJSON(ctx, http.MethodGet, s.url+"/collections", nil, nil); err != nil {
		return store.WrapRead("ping", err)
	}
	return nil
}

// Close is a no-op; the driver holds no persistent connections.
func (s *Store) Close() {}

func matchFilter(key, value string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": key, "match": map[string]any{"value": value}},
		},
	}
}

// doJSON runs one request under the per-call timeout and decodes the response
// into out when non-nil.
func (s *Store) doJSON(ctx context.Context, method, url string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %s: %s", method, url, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
