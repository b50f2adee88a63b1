package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/srinipal/filesearch/internal/searcher/handler"
)

var defaultQueries = []string{
	"configuration file",
	"error handling",
	"release notes",
	"install guide",
	"database migration",
	"timeout retry",
	"meeting notes",
	"unknownterm",
}

type options struct {
	baseURL       string
	concurrency   int
	duration      time.Duration
	limit         int
	matchAllEvery int
	rps           float64
	queries       []string
}

type stats struct {
	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int
	outcomes    map[string]int
	cacheHits   int
	transport   int
}

func newStats() *stats {
	return &stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int),
		outcomes:    make(map[string]int),
	}
}

func (s *stats) record(d time.Duration, status int, resp *handler.SearchResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	if resp != nil {
		s.outcomes[string(resp.Outcome)]++
		if resp.CacheHit {
			s.cacheHits++
		}
	}
}

func (s *stats) recordTransportError() {
	s.mu.Lock()
	s.transport++
	s.mu.Unlock()
}

func main() {
	opts := options{}
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the search service")
	flag.IntVar(&opts.concurrency, "concurrency", 10, "concurrent clients")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	flag.IntVar(&opts.limit, "limit", 10, "results per query")
	flag.IntVar(&opts.matchAllEvery, "match-all-every", 4, "send every n-th query with match_all=true; 0 never")
	flag.Float64Var(&opts.rps, "rate", 0, "total requests per second across clients; 0 unlimited")
	queryFile := flag.String("queries", "", "file with one query per line")
	flag.Parse()

	opts.queries = defaultQueries
	if *queryFile != "" {
		queries, err := readQueries(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		opts.queries = queries
	}

	fmt.Println("=== File Search Load Test ===")
	fmt.Printf("Target:      %s\n", opts.baseURL)
	fmt.Printf("Concurrency: %d\n", opts.concurrency)
	if opts.rps > 0 {
		fmt.Printf("Rate:        %.1f req/s\n", opts.rps)
	}
	fmt.Printf("Duration:    %s\n", opts.duration)
	fmt.Printf("Queries:     %d unique\n\n", len(opts.queries))

	s := run(opts)
	if !report(s, opts.duration) {
		os.Exit(1)
	}
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			queries = append(queries, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s has no queries", path)
	}
	return queries, nil
}

func searchURL(opts options, n int) string {
	v := url.Values{}
	v.Set("q", opts.queries[n%len(opts.queries)])
	v.Set("limit", fmt.Sprint(opts.limit))
	if opts.matchAllEvery > 0 && n%opts.matchAllEvery == 0 {
		v.Set("match_all", "true")
	}
	return opts.baseURL + "/api/v1/search?" + v.Encode()
}

func run(opts options) *stats {
	s := newStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	limiter := newLimiter(opts.rps)

	var g errgroup.Group
	for w := 0; w < opts.concurrency; w++ {
		g.Go(func() error {
			for n := w; ctx.Err() == nil; n += opts.concurrency {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL(opts, n), nil)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						s.recordTransportError()
					}
					continue
				}
				var body handler.SearchResponse
				decoded := &body
				if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&body) != nil {
					decoded = nil
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				s.record(time.Since(start), resp.StatusCode, decoded)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "load test aborted: %v\n", err)
	}
	return s
}

// newLimiter paces the whole run at rps requests per second. A non-positive
// rps never blocks.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
}

func report(s *stats, duration time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.latencies) + s.transport
	fmt.Println("=== Results ===")
	fmt.Printf("Requests:         %d\n", total)
	fmt.Printf("Transport errors: %d\n", s.transport)
	if total == 0 {
		fmt.Println("\nWARNING: no requests completed. Is the search service running?")
		return false
	}
	fmt.Printf("Requests/sec:     %.2f\n", float64(total)/duration.Seconds())
	fmt.Printf("Cache hits:       %d\n", s.cacheHits)

	if len(s.latencies) > 0 {
		sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
		fmt.Println("\n=== Latency ===")
		fmt.Printf("Min: %s\n", s.latencies[0])
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Printf("P%.0f: %s\n", p, percentile(s.latencies, p))
		}
		fmt.Printf("Max: %s\n", s.latencies[len(s.latencies)-1])
	}

	fmt.Println("\n=== Outcomes ===")
	for _, name := range sortedKeys(s.outcomes) {
		fmt.Printf("  %-11s %d\n", name, s.outcomes[name])
	}
	fmt.Println("\n=== Status Codes ===")
	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, s.statusCodes[code])
	}
	return true
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
