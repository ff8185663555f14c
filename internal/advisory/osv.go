package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/time/rate"

	"codebot/internal/manifest"
	"codebot/internal/store"
)

const (
	osvQueryBatchURL = "https://api.osv.dev/v1/querybatch"

	// DefaultBatchSize is the number of queries sent per request. The API
	// accepts up to 1000; smaller batches keep a single failure cheap.
	DefaultBatchSize = 100

	cacheNamespace = "osv"
	maxBodyBytes   = 32 << 20
)

// OSVClient checks for vulnerabilities using the OSV API.
type OSVClient struct {
	HTTPClient *http.Client
	APIURL     string
	// VulnURL is the base of the per-id endpoint. Empty derives it from
	// APIURL ("/v1/querybatch" -> "/v1/vulns").
	VulnURL string

	BatchSize int
	// Timeout bounds one batch including its retries and hydration.
	Timeout time.Duration
	Retry   RetryConfig
	Limiter *rate.Limiter

	// Cache, when set, stores per-descriptor results for CacheTTL.
	Cache    store.Store
	CacheTTL time.Duration

	Logger *slog.Logger

	sleep sleepFunc
}

// NewOSVClient returns a client for the public OSV instance paced at five
// requests per second.
func NewOSVClient() *OSVClient {
	return &OSVClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIURL:     osvQueryBatchURL,
		BatchSize:  DefaultBatchSize,
		Timeout:    30 * time.Second,
		Retry:      DefaultRetryConfig(),
		Limiter:    rate.NewLimiter(rate.Limit(5), 5),
		CacheTTL:   24 * time.Hour,
		Logger:     slog.Default(),
	}
}

type osvQuery struct {
	Package osvPackage `json:"package,omitempty"`
	Version string     `json:"version,omitempty"`
}

type osvPackage struct {
	Name      string `json:"name,omitempty"`
	Ecosystem string `json:"ecosystem,omitempty"`
}

type osvBatchRequest struct {
	Queries []osvQuery `json:"queries"`
}

type osvBatchResponse struct {
	Results []osvResult `json:"results"`
}

type osvResult struct {
	Vulns         []osvVuln `json:"vulns"`
	NextPageToken string    `json:"next_page_token,omitempty"`
}

type osvVuln struct {
	ID         string    `json:"id"`
	Aliases    []string  `json:"aliases,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Details    string    `json:"details,omitempty"`
	Published  time.Time `json:"published,omitempty"`
	Modified   time.Time `json:"modified,omitempty"`
	References []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"references,omitempty"`
	DatabaseSpecific struct {
		Severity string `json:"severity,omitempty"`
	} `json:"database_specific,omitempty"`
	Severity []osvSeverity `json:"severity,omitempty"`
	Affected []osvAffected `json:"affected,omitempty"`
}

type osvSeverity struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

type osvAffected struct {
	Package osvPackage `json:"package"`
	Ranges  []struct {
		Type   string `json:"type"`
		Events []struct {
			Introduced   string `json:"introduced,omitempty"`
			Fixed        string `json:"fixed,omitempty"`
			LastAffected string `json:"last_affected,omitempty"`
		} `json:"events"`
	} `json:"ranges,omitempty"`
	DatabaseSpecific struct {
		Severity string `json:"severity,omitempty"`
	} `json:"database_specific,omitempty"`
}

// hydrated reports whether the batch endpoint already returned the full
// record. The public API returns only id and modified.
func (v osvVuln) hydrated() bool {
	return v.Summary != "" || v.Details != "" || len(v.Severity) > 0 || len(v.Affected) > 0
}

// httpStatusError is a non-2xx answer from the API.
type httpStatusError struct {
	Status string
	Code   int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("OSV API returned status: %s", e.Status)
}

// Lookup resolves advisories for every descriptor. Descriptors without an
// effective version are skipped. Each batch gets its own timeout; a batch
// that fails leaves its entries with Err set and the call returns
// ErrIncomplete alongside the aligned results.
func (c *OSVClient) Lookup(ctx context.Context, batch []manifest.Descriptor) ([]Result, error) {
	results := make([]Result, len(batch))
	pending := make([]int, 0, len(batch))
	for i, d := range batch {
		results[i].Descriptor = d
		if d.Name == "" || d.Version == "" {
			continue
		}
		if advs, ok := c.cached(ctx, d); ok {
			results[i].Advisories = advs
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return results, nil
	}

	size := c.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	var failed int
	for start := 0; start < len(pending); start += size {
		idx := pending[start:min(start+size, len(pending))]

		if err := ctx.Err(); err != nil {
			for _, i := range pending[start:] {
				results[i].Err = fmt.Errorf("%w: %w", ErrBatchFailed, err)
			}
			failed += len(pending) - start
			break
		}

		unresolved, err := c.lookupBatch(ctx, batch, idx, results)
		if err != nil {
			c.logger().Warn("advisory batch failed", "packages", len(idx), "error", err)
			for _, i := range idx {
				results[i].Advisories = nil
				results[i].Err = fmt.Errorf("%w: %w", ErrBatchFailed, err)
			}
			failed += len(idx)
			continue
		}
		if unresolved > 0 {
			c.logger().Warn("advisory details incomplete", "packages", len(idx), "unresolved", unresolved)
			failed += unresolved
		}

		for _, i := range idx {
			if results[i].Err == nil {
				c.store(ctx, batch[i], results[i].Advisories)
			}
		}
	}

	if failed > 0 {
		return results, fmt.Errorf("%w: %d of %d packages unresolved", ErrIncomplete, failed, len(pending))
	}
	return results, nil
}

// lookupBatch runs one querybatch call and hydrates the returned ids. A
// failed query fails the whole batch; a failed hydration only marks the
// packages that reference that id, and the count of those is returned.
func (c *OSVClient) lookupBatch(ctx context.Context, batch []manifest.Descriptor, idx []int, results []Result) (int, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req := osvBatchRequest{Queries: make([]osvQuery, len(idx))}
	for n, i := range idx {
		d := batch[i]
		req.Queries[n] = osvQuery{
			Package: osvPackage{Name: d.Name, Ecosystem: string(d.Ecosystem)},
			Version: d.Version,
		}
	}

	var resp osvBatchResponse
	if err := c.do(ctx, http.MethodPost, c.APIURL, req, &resp); err != nil {
		return 0, err
	}
	if len(resp.Results) != len(idx) {
		return 0, fmt.Errorf("OSV API returned %d results for %d queries", len(resp.Results), len(idx))
	}

	var unresolved int
	details := make(map[string]osvVuln)
	hydrateErrs := make(map[string]error)
	for n, res := range resp.Results {
		i := idx[n]
		advs := make([]Advisory, 0, len(res.Vulns))
		seen := make(map[string]bool, len(res.Vulns))
		for _, v := range res.Vulns {
			if v.ID == "" || seen[v.ID] {
				continue
			}
			seen[v.ID] = true
			if !v.hydrated() {
				full, err := c.hydrate(ctx, v.ID, details, hydrateErrs)
				if err != nil {
					if results[i].Err == nil {
						results[i].Err = fmt.Errorf("%w: hydrate %s: %w", ErrBatchFailed, v.ID, err)
					}
					continue
				}
				v = full
			}
			advs = append(advs, toAdvisory(v, batch[i]))
		}
		// Advisories that did resolve are kept even when a sibling failed.
		results[i].Advisories = advs
		if results[i].Err != nil {
			unresolved++
		}
	}
	return unresolved, nil
}

// hydrate fetches full details for id once per batch, remembering failures
// so a shared id is not retried for every package that references it.
func (c *OSVClient) hydrate(ctx context.Context, id string, details map[string]osvVuln, errs map[string]error) (osvVuln, error) {
	if v, ok := details[id]; ok {
		return v, nil
	}
	if err, ok := errs[id]; ok {
		return osvVuln{}, err
	}
	v, err := c.fetchVuln(ctx, id)
	if err != nil {
		errs[id] = err
		return osvVuln{}, err
	}
	details[id] = v
	return v, nil
}

func (c *OSVClient) fetchVuln(ctx context.Context, id string) (osvVuln, error) {
	var v osvVuln
	err := c.do(ctx, http.MethodGet, c.vulnURL()+"/"+url.PathEscape(id), nil, &v)
	if v.ID == "" {
		v.ID = id
	}
	return v, err
}

func (c *OSVClient) vulnURL() string {
	if c.VulnURL != "" {
		return strings.TrimSuffix(c.VulnURL, "/")
	}
	base := strings.TrimSuffix(c.APIURL, "/")
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[:i]
	}
	return base + "/vulns"
}

// do sends one paced, retried JSON request and decodes the reply into out.
func (c *OSVClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	sleep := c.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	err := retry(ctx, c.Retry, sleep, func() error {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return permanent(err)
			}
		}

		var rdr io.Reader
		if payload != nil {
			rdr = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
		if err != nil {
			return permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient().Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return permanent(fmt.Errorf("OSV API request failed: %w", err))
			}
			return fmt.Errorf("OSV API request failed: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return &retryAfterError{
				err:   fmt.Errorf("%w: %w", ErrRateLimited, &httpStatusError{Status: resp.Status, Code: resp.StatusCode}),
				after: parseRetryAfter(resp.Header.Get("Retry-After")),
			}
		case resp.StatusCode >= 500:
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return &httpStatusError{Status: resp.Status, Code: resp.StatusCode}
		case resp.StatusCode != http.StatusOK:
			return permanent(&httpStatusError{Status: resp.Status, Code: resp.StatusCode})
		}

		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
			return permanent(fmt.Errorf("failed to decode OSV response: %w", err))
		}
		return nil
	})
	return err
}

func (c *OSVClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *OSVClient) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *OSVClient) cached(ctx context.Context, d manifest.Descriptor) ([]Advisory, bool) {
	if c.Cache == nil {
		return nil, false
	}
	raw, ok, err := c.Cache.Get(ctx, cacheNamespace, d.String(), c.CacheTTL)
	if err != nil || !ok {
		if err != nil {
			c.logger().Debug("advisory cache read failed", "package", d.String(), "error", err)
		}
		return nil, false
	}
	var advs []Advisory
	if err := json.Unmarshal(raw, &advs); err != nil {
		return nil, false
	}
	return advs, true
}

func (c *OSVClient) store(ctx context.Context, d manifest.Descriptor, advs []Advisory) {
	if c.Cache == nil {
		return
	}
	if advs == nil {
		advs = []Advisory{}
	}
	raw, err := json.Marshal(advs)
	if err != nil {
		return
	}
	if err := c.Cache.Put(ctx, cacheNamespace, d.String(), raw); err != nil {
		c.logger().Debug("advisory cache write failed", "package", d.String(), "error", err)
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func toAdvisory(v osvVuln, d manifest.Descriptor) Advisory {
	adv := Advisory{
		ID:        v.ID,
		Aliases:   v.Aliases,
		Summary:   v.Summary,
		Details:   v.Details,
		Severity:  v.DatabaseSpecific.Severity,
		Published: v.Published,
	}
	if adv.Summary == "" {
		adv.Summary = firstLine(v.Details)
	}

	for _, ref := range v.References {
		adv.References = append(adv.References, ref.URL)
	}

	// Prefer v3 vectors; a bare numeric score is accepted from any type.
	for _, s := range v.Severity {
		score, err := ParseScore(s.Score)
		if err != nil {
			continue
		}
		if score > adv.Score {
			adv.Score = score
			adv.Vector = s.Score
		}
	}

	for _, a := range v.Affected {
		if !affects(a, d) {
			continue
		}
		if adv.Severity == "" {
			adv.Severity = a.DatabaseSpecific.Severity
		}
		for _, r := range a.Ranges {
			var introduced string
			for _, ev := range r.Events {
				switch {
				case ev.Introduced != "":
					introduced = ev.Introduced
				case ev.Fixed != "":
					if adv.Fixed == "" || inRange(d.Version, introduced, ev.Fixed) {
						adv.Fixed = ev.Fixed
						adv.Affected = fmt.Sprintf(">=%s, <%s", introduced, ev.Fixed)
					}
				case ev.LastAffected != "":
					if adv.Affected == "" {
						adv.Affected = fmt.Sprintf(">=%s, <=%s", introduced, ev.LastAffected)
					}
				}
			}
		}
	}
	return adv
}

// inRange reports whether version falls in [introduced, fixed). Versions
// that are not semver never match.
func inRange(version, introduced, fixed string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	f, err := semver.NewVersion(fixed)
	if err != nil || !v.LessThan(f) {
		return false
	}
	if introduced == "" || introduced == "0" {
		return true
	}
	i, err := semver.NewVersion(introduced)
	return err == nil && !v.LessThan(i)
}

func affects(a osvAffected, d manifest.Descriptor) bool {
	if a.Package.Name == "" {
		return true
	}
	if !strings.EqualFold(a.Package.Name, d.Name) {
		return false
	}
	// OSV ecosystems may carry a suffix such as "Debian:11".
	eco, _, _ := strings.Cut(a.Package.Ecosystem, ":")
	return eco == "" || strings.EqualFold(eco, string(d.Ecosystem))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

