package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codebot/internal/manifest"
	"codebot/internal/store"
)

func newTestClient(ts *httptest.Server) *OSVClient {
	c := NewOSVClient()
	c.HTTPClient = ts.Client()
	c.APIURL = ts.URL + "/v1/querybatch"
	c.Limiter = nil
	c.Retry = RetryConfig{MaxAttempts: 2}
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

const lodashVuln = `{
	"id": "GHSA-jf85-cpcp-j695",
	"aliases": ["CVE-2019-10744"],
	"summary": "Prototype Pollution in lodash",
	"severity": [{"type": "CVSS_V3", "score": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"}],
	"affected": [{
		"package": {"name": "lodash", "ecosystem": "npm"},
		"ranges": [{"type": "SEMVER", "events": [{"introduced": "0"}, {"fixed": "4.17.12"}]}]
	}],
	"references": [{"type": "ADVISORY", "url": "https://nvd.nist.gov/vuln/detail/CVE-2019-10744"}]
}`

func TestOSVClient_Lookup(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/querybatch", r.URL.Path)

		var req osvBatchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if !assert.Len(t, req.Queries, 2) {
			return
		}
		assert.Equal(t, "lodash", req.Queries[0].Package.Name)
		assert.Equal(t, "npm", req.Queries[0].Package.Ecosystem)
		assert.Equal(t, "4.17.11", req.Queries[0].Version)

		fmt.Fprintf(w, `{"results": [{"vulns": [%s]}, {"vulns": []}]}`, lodashVuln)
	}))
	defer ts.Close()

	client := newTestClient(ts)
	results, err := client.Lookup(context.Background(), []manifest.Descriptor{
		{Ecosystem: manifest.NPM, Name: "lodash", Version: "4.17.11"},
		{Ecosystem: manifest.NPM, Name: "left-pad", Version: "1.3.0"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Len(t, results[0].Advisories, 1)
	adv := results[0].Advisories[0]
	assert.Equal(t, "GHSA-jf85-cpcp-j695", adv.ID)
	assert.Equal(t, "CVE-2019-10744", adv.ReferenceID())
	assert.Equal(t, 9.8, adv.Score)
	assert.Equal(t, "4.17.12", adv.Fixed)
	assert.Equal(t, ">=0, <4.17.12", adv.Affected)
	assert.Equal(t, []string{"https://nvd.nist.gov/vuln/detail/CVE-2019-10744"}, adv.References)

	assert.Empty(t, results[1].Advisories)
	assert.NoError(t, results[1].Err)
}

func TestOSVClient_HydratesIDOnlyResults(t *testing.T) {
	var vulnCalls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/querybatch":
			// Same advisory for both packages is fetched once.
			fmt.Fprint(w, `{"results": [
				{"vulns": [{"id": "GHSA-jf85-cpcp-j695", "modified": "2024-01-01T00:00:00Z"}]},
				{"vulns": [{"id": "GHSA-jf85-cpcp-j695", "modified": "2024-01-01T00:00:00Z"}]}
			]}`)
		case "/v1/vulns/GHSA-jf85-cpcp-j695":
			vulnCalls.Add(1)
			fmt.Fprint(w, lodashVuln)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	client := newTestClient(ts)
	results, err := client.Lookup(context.Background(), []manifest.Descriptor{
		{Ecosystem: manifest.NPM, Name: "lodash", Version: "4.17.11"},
		{Ecosystem: manifest.NPM, Name: "lodash", Version: "4.17.10"},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), vulnCalls.Load())
	for _, res := range results {
		require.Len(t, res.Advisories, 1)
		assert.Equal(t, "Prototype Pollution in lodash", res.Advisories[0].Summary)
		assert.Equal(t, "4.17.12", res.Advisories[0].Fixed)
	}
}

func TestOSVClient_BatchesAndPartialFailure(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		var req osvBatchRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}

		if req.Queries[0].Package.Name == "pkg-100" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.LessOrEqual(t, len(req.Queries), 100, "call %d", n)

		results := make([]string, len(req.Queries))
		for i := range results {
			results[i] = `{"vulns": []}`
		}
		fmt.Fprintf(w, `{"results": [%s]}`, strings.Join(results, ","))
	}))
	defer ts.Close()

	descs := make([]manifest.Descriptor, 250)
	for i := range descs {
		descs[i] = manifest.Descriptor{Ecosystem: manifest.PyPI, Name: fmt.Sprintf("pkg-%d", i), Version: "1.0"}
	}

	client := newTestClient(ts)
	results, err := client.Lookup(context.Background(), descs)
	require.ErrorIs(t, err, ErrIncomplete)
	require.Len(t, results, 250)

	// Batches: [0,100) ok, [100,200) fails twice (retried), [200,250) ok.
	assert.Equal(t, int32(4), calls.Load())
	for i, res := range results {
		assert.Equal(t, descs[i], res.Descriptor)
		if i >= 100 && i < 200 {
			assert.ErrorIs(t, res.Err, ErrBatchFailed, "index %d", i)
		} else {
			assert.NoError(t, res.Err, "index %d", i)
		}
	}
}

func TestOSVClient_RateLimited(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := newTestClient(ts)
	results, err := client.Lookup(context.Background(), []manifest.Descriptor{
		{Ecosystem: manifest.Go, Name: "golang.org/x/net", Version: "0.1.0"},
	})
	require.ErrorIs(t, err, ErrIncomplete)
	assert.ErrorIs(t, results[0].Err, ErrRateLimited)
}

func TestOSVClient_BatchTimeout(t *testing.T) {
	block := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(block)

	client := newTestClient(ts)
	client.Timeout = 50 * time.Millisecond
	results, err := client.Lookup(context.Background(), []manifest.Descriptor{
		{Ecosystem: manifest.CratesIO, Name: "smallvec", Version: "1.6.0"},
	})
	require.ErrorIs(t, err, ErrIncomplete)
	assert.ErrorIs(t, results[0].Err, ErrBatchFailed)
}

func TestOSVClient_HydrationTimeoutKeepsResolvedPackages(t *testing.T) {
	block := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/querybatch":
			fmt.Fprint(w, `{"results": [
				{"vulns": [{"id": "GHSA-jf85-cpcp-j695", "modified": "2024-01-01T00:00:00Z"}]},
				{"vulns": [{"id": "SLOW-1", "modified": "2024-01-01T00:00:00Z"}]}
			]}`)
		case "/v1/vulns/GHSA-jf85-cpcp-j695":
			fmt.Fprint(w, lodashVuln)
		case "/v1/vulns/SLOW-1":
			select {
			case <-block:
			case <-r.Context().Done():
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()
	defer close(block)

	client := newTestClient(ts)
	client.Timeout = 200 * time.Millisecond
	results, err := client.Lookup(context.Background(), []manifest.Descriptor{
		{Ecosystem: manifest.NPM, Name: "lodash", Version: "4.17.11"},
		{Ecosystem: manifest.NPM, Name: "slowpkg", Version: "1.0.0"},
	})
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), "1 of 2 packages unresolved")

	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	require.Len(t, results[0].Advisories, 1)
	assert.Equal(t, "GHSA-jf85-cpcp-j695", results[0].Advisories[0].ID)

	assert.ErrorIs(t, results[1].Err, ErrBatchFailed)
	assert.Empty(t, results[1].Advisories)
}

func TestOSVClient_SkipsUnresolvedVersions(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer ts.Close()

	client := newTestClient(ts)
	results, err := client.Lookup(context.Background(), []manifest.Descriptor{
		{Ecosystem: manifest.NPM, Name: "react", Constraint: "*"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Advisories)
}

func TestOSVClient_Cache(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprintf(w, `{"results": [{"vulns": [%s]}]}`, lodashVuln)
	}))
	defer ts.Close()

	cache, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "osv.db"))
	require.NoError(t, err)
	defer cache.Close()

	client := newTestClient(ts)
	client.Cache = cache
	descs := []manifest.Descriptor{{Ecosystem: manifest.NPM, Name: "lodash", Version: "4.17.11"}}

	first, err := client.Lookup(context.Background(), descs)
	require.NoError(t, err)
	second, err := client.Lookup(context.Background(), descs)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	require.Len(t, second[0].Advisories, 1)
	assert.Equal(t, first[0].Advisories[0].ID, second[0].Advisories[0].ID)
	assert.Equal(t, first[0].Advisories[0].Score, second[0].Advisories[0].Score)
}

func TestToAdvisory_DatabaseSeverity(t *testing.T) {
	var v osvVuln
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "RUSTSEC-2021-0003",
		"details": "Buffer overflow in SmallVec::insert_many\nmore text",
		"database_specific": {"severity": "HIGH"},
		"affected": [
			{"package": {"name": "other", "ecosystem": "crates.io"},
			 "ranges": [{"type": "SEMVER", "events": [{"introduced": "0"}, {"fixed": "9.9.9"}]}]},
			{"package": {"name": "smallvec", "ecosystem": "crates.io"},
			 "ranges": [{"type": "SEMVER", "events": [{"introduced": "0.6.3"}, {"fixed": "0.6.14"}, {"introduced": "1.0.0"}, {"fixed": "1.6.1"}]}]}
		]
	}`), &v))

	adv := toAdvisory(v, manifest.Descriptor{Ecosystem: manifest.CratesIO, Name: "smallvec", Version: "1.6.0"})
	assert.Equal(t, "Buffer overflow in SmallVec::insert_many", adv.Summary)
	assert.Equal(t, "HIGH", adv.Severity)
	assert.Zero(t, adv.Score)
	assert.Equal(t, "1.6.1", adv.Fixed)
	assert.Equal(t, ">=1.0.0, <1.6.1", adv.Affected)
	assert.Equal(t, "RUSTSEC-2021-0003", adv.ReferenceID())
}
