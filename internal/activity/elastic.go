package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v9"
)

type ElasticSink struct {
	ES    *elasticsearch.Client
	Index string
}

func (s *ElasticSink) Record(ctx context.Context, e Event) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(e); err != nil {
		return fmt.Errorf("activity: encode: %w", err)
	}

	res, err := s.ES.Index(s.Index, &buf,
		s.ES.Index.WithContext(ctx),
		s.ES.Index.WithDocumentID(e.ID),
	)
	if err != nil {
		return fmt.Errorf("activity: index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("activity: index returned %s: %s", res.Status(), body)
	}
	return nil
}

type Query struct {
	Partition   string
	PrincipalID string
	Type        Type
	From        int
	Size        int
}

func (q Query) body() map[string]any {
	var filters []any
	term := func(field, value string) {
		if value != "" {
			filters = append(filters, map[string]any{"term": map[string]any{field: value}})
		}
	}
	term("partition.keyword", q.Partition)
	term("principalId.keyword", q.PrincipalID)
	term("type.keyword", string(q.Type))

	query := map[string]any{"match_all": map[string]any{}}
	if len(filters) > 0 {
		query = map[string]any{"bool": map[string]any{"filter": filters}}
	}
	return map[string]any{
		"query": query,
		"sort":  []any{map[string]any{"occurredAt": map[string]any{"order": "desc"}}},
		"from":  q.From,
		"size":  q.Size,
	}
}

func (s *ElasticSink) Search(ctx context.Context, q Query) (int64, []Event, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(q.body()); err != nil {
		return 0, nil, fmt.Errorf("activity: encode query: %w", err)
	}

	res, err := s.ES.Search(
		s.ES.Search.WithContext(ctx),
		s.ES.Search.WithIndex(s.Index),
		s.ES.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("activity: search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return 0, nil, fmt.Errorf("activity: search returned %s: %s", res.Status(), body)
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source Event `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("activity: decode: %w", err)
	}

	events := make([]Event, len(r.Hits.Hits))
	for i, h := range r.Hits.Hits {
		events[i] = h.Source
	}
	return r.Hits.Total.Value, events, nil
}
