package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.mercari.io/popcache"
	"go.mercari.io/popcache/bulk/csvinput"
	"golang.org/x/sync/errgroup"
)

type options struct {
	baseURL     string
	dataPath    string
	samples     int
	connections int
	requests    int
	seed        int64
}

type sample struct {
	city       string
	state      string
	population int64
}

// loadSamples reads up to n valid rows of the CSV at path.
func loadSamples(ctx context.Context, path string, n int) ([]sample, error) {
	var rows []sample
	stop := errors.New("enough samples")

	err := csvinput.Open(path).Records(ctx, func(r popcache.Record) error {
		value, err := popcache.ParseValue(r.Value)
		if err != nil {
			return nil
		}
		rows = append(rows, sample{city: r.Locality, state: r.Region, population: value})
		if len(rows) == n {
			return stop
		}
		return nil
	})
	if err != nil && err != stop {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no sample in %s", path)
	}
	return rows, nil
}

type result struct {
	m        sync.Mutex
	requests int
	statuses map[int]int
	failures int
}

func (res *result) record(method string, status int) {
	res.m.Lock()
	defer res.m.Unlock()

	res.requests++
	res.statuses[status]++
	if !expected(method, status) {
		res.failures++
	}
}

func expected(method string, status int) bool {
	if 200 <= status && status < 300 {
		return true
	}
	return method == http.MethodGet && status == http.StatusNotFound
}

func (res *result) print(w io.Writer, elapsed time.Duration) {
	fmt.Fprintf(w, "requests: %d in %s (%.1f req/s)\n", res.requests, elapsed.Round(time.Millisecond), float64(res.requests)/elapsed.Seconds())

	codes := make([]int, 0, len(res.statuses))
	for code := range res.statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d %s: %d\n", code, http.StatusText(code), res.statuses[code])
	}
}

func populationURL(base string, s sample) string {
	return fmt.Sprintf("%s/api/population/state/%s/city/%s", strings.TrimRight(base, "/"), url.PathEscape(s.state), url.PathEscape(s.city))
}

func bench(ctx context.Context, opts options, rows []sample) (*result, error) {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 2
	client.HTTPClient.Transport.(*http.Transport).MaxIdleConnsPerHost = opts.connections

	res := &result{statuses: make(map[int]int)}

	eg, ctx := errgroup.WithContext(ctx)
	for conn := 0; conn < opts.connections; conn++ {
		// every connection has its own sequence, derived from the seed.
		r := rand.New(rand.NewSource(opts.seed + int64(conn)))
		eg.Go(func() error {
			for i := 0; i < opts.requests; i++ {
				s := rows[r.Intn(len(rows))]
				u := populationURL(opts.baseURL, s)

				status, err := send(ctx, client, http.MethodGet, u, "")
				if err != nil {
					return err
				}
				res.record(http.MethodGet, status)

				status, err = send(ctx, client, http.MethodPut, u, strconv.FormatInt(s.population, 10))
				if err != nil {
					return err
				}
				res.record(http.MethodPut, status)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return res, nil
}

func send(ctx context.Context, client *retryablehttp.Client, method, u, body string) (int, error) {
	var rawBody interface{}
	if body != "" {
		rawBody = strings.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, rawBody)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
