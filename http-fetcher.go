package coalescer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// HTTPFetcher loads a batch with one GET request, passing every key as a repeated query parameter
// (for instance `/api/user/?ids=1&ids=2`). The endpoint must respond with a JSON array of values.
type HTTPFetcher[K comparable, V any] struct {
	client   *http.Client
	endpoint string
	param    string
	idOf     func(V) K
}

// This function creates an HTTPFetcher. The idOf func tells the fetcher which key a returned value belongs to.
func NewHTTPFetcher[K comparable, V any](endpoint string, idOf func(V) K) *HTTPFetcher[K, V] {
	return &HTTPFetcher[K, V]{
		client:   http.DefaultClient,
		endpoint: endpoint,
		param:    "ids",
		idOf:     idOf,
	}
}

func (f *HTTPFetcher[K, V]) WithClient(val *http.Client) *HTTPFetcher[K, V] {
	f.client = val
	return f
}

// The name of the query parameter carrying the keys. The default is `ids`.
func (f *HTTPFetcher[K, V]) WithParam(val string) *HTTPFetcher[K, V] {
	f.param = val
	return f
}

func (f *HTTPFetcher[K, V]) Fetch(ctx context.Context, keys []K) (map[K]V, error) {

	// build the url
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return nil, err
	}
	query := u.Query()
	for _, key := range keys {
		query.Add(f.param, fmt.Sprint(key))
	}
	u.RawQuery = query.Encode()

	// make the call
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, FetchStatusError{URL: u.String(), StatusCode: res.StatusCode}
	}

	// map the values back to their keys
	var list []V
	if err := json.NewDecoder(res.Body).Decode(&list); err != nil {
		return nil, err
	}
	values := make(map[K]V, len(list))
	for _, value := range list {
		values[f.idOf(value)] = value
	}

	return values, nil
}
