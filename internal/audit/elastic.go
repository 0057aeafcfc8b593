package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/photoshare/internal/domain"
)

func NewESClient(ctx context.Context, url, user, password string) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Username:  user,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch info: %s: %s", res.Status(), body)
	}
	return client, nil
}

// ESSink stores audit records as documents in an Elasticsearch index.
type ESSink struct {
	Client *elasticsearch.Client
	Index  string
}

// indexMapping keeps the filter fields as keywords so Search can match ids
// exactly and sort by time.
const indexMapping = `{
  "mappings": {
    "properties": {
      "action":    {"type": "keyword"},
      "actor_id":  {"type": "keyword"},
      "target_id": {"type": "keyword"},
      "outcome":   {"type": "keyword"},
      "detail":    {"type": "object"},
      "at":        {"type": "date"}
    }
  }
}`

// EnsureIndex creates the audit index with its mapping. An index that
// already exists is left as is.
func (s *ESSink) EnsureIndex(ctx context.Context) error {
	res, err := s.Client.Indices.Create(s.Index,
		s.Client.Indices.Create.WithContext(ctx),
		s.Client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return domain.Infra("audit.create_index", err)
	}
	defer res.Body.Close()
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode == http.StatusBadRequest && bytes.Contains(body, []byte("resource_already_exists_exception")) {
		return nil
	}
	return domain.Infra("audit.create_index", fmt.Errorf("elasticsearch: %s: %s", res.Status(), body))
}

func (s *ESSink) Record(ctx context.Context, r Record) error {
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("audit: marshal: %w", err)
	}

	res, err := s.Client.Index(s.Index, bytes.NewReader(body), s.Client.Index.WithContext(ctx))
	if err != nil {
		return domain.Infra("audit.index", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return domain.Infra("audit.index", fmt.Errorf("elasticsearch: %s", res.Status()))
	}
	return nil
}

// Search returns records touching userID (as actor or target), newest first.
func (s *ESSink) Search(ctx context.Context, userID string, from, size int) (int64, []Record, error) {
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"term": map[string]any{"actor_id": userID}},
					map[string]any{"term": map[string]any{"target_id": userID}},
				},
				"minimum_should_match": 1,
			},
		},
		"sort": []any{map[string]any{"at": map[string]any{"order": "desc"}}},
		"from": from,
		"size": size,
	}
	if userID == "" {
		query["query"] = map[string]any{"match_all": map[string]any{}}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return 0, nil, fmt.Errorf("audit: encode query: %w", err)
	}

	res, err := s.Client.Search(
		s.Client.Search.WithContext(ctx),
		s.Client.Search.WithIndex(s.Index),
		s.Client.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, domain.Infra("audit.search", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, domain.Infra("audit.search", fmt.Errorf("elasticsearch: %s", res.Status()))
	}

	var r struct {
		Hits struct {
			Total struct{ Value int64 } `json:"total"`
			Hits  []struct {
				Source Record `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, domain.Infra("audit.search", err)
	}

	records := make([]Record, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		records[i] = hit.Source
	}
	return r.Hits.Total.Value, records, nil
}
