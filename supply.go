package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ArticleSupplier is the external content-item source: given a
// quantity, it returns a randomized batch of articles. The coordinator
// treats it as opaque and only ever calls it outside room locks.
type ArticleSupplier interface {
	Fetch(ctx context.Context, quantity int) ([]Article, error)
}

type httpSupplier struct {
	baseURL string
	client  *http.Client
}

func newHTTPSupplier(baseURL string) *httpSupplier {
	return &httpSupplier{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *httpSupplier) Fetch(ctx context.Context, quantity int) ([]Article, error) {
	endpoint, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("supply: bad base url %q: %w", s.baseURL, err)
	}

	query := endpoint.Query()
	query.Set("count", strconv.Itoa(quantity))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("supply: unexpected status %d", resp.StatusCode)
	}

	var articles []Article
	if err := json.NewDecoder(resp.Body).Decode(&articles); err != nil {
		return nil, fmt.Errorf("supply: decoding response: %w", err)
	}

	return articles, nil
}

// splitBatches slices a fetched article list into per-player batches of
// at most size each, one per member in seating order. Short fetches
// yield short (possibly empty) trailing batches rather than an error.
func splitBatches(articles []Article, members []Player, size int) map[string][]Article {
	batches := make(map[string][]Article, len(members))

	for _, member := range members {
		n := size
		if n > len(articles) {
			n = len(articles)
		}
		batches[member.ID] = articles[:n]
		articles = articles[n:]
	}

	return batches
}
