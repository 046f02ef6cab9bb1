package es

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v9"
)

type Config struct {
	URL      string
	User     string
	Password string

	// Transport is swapped in tests.
	Transport http.RoundTripper
}

// NewClient builds a client and checks the cluster answers before handing
// it out.
func NewClient(ctx context.Context, cfg Config) (*elasticsearch.Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("elasticsearch: url is empty")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.User,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: info: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch: info returned %s: %s", res.Status(), body)
	}
	return client, nil
}
