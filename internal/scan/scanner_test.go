package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"codebot/internal/advisory"
	"codebot/internal/engine"
	"codebot/internal/finding"
	"codebot/internal/manifest"
	"codebot/internal/metrics"
	"codebot/internal/source"
)

type MockAdvisoryClient struct {
	mock.Mock
}

func (m *MockAdvisoryClient) Lookup(ctx context.Context, batch []manifest.Descriptor) ([]advisory.Result, error) {
	args := m.Called(ctx, batch)
	if fn, ok := args.Get(0).(func([]manifest.Descriptor) []advisory.Result); ok {
		return fn(batch), args.Error(1)
	}
	results, _ := args.Get(0).([]advisory.Result)
	return results, args.Error(1)
}

func respond(byName map[string][]advisory.Advisory) func([]manifest.Descriptor) []advisory.Result {
	return func(batch []manifest.Descriptor) []advisory.Result {
		out := make([]advisory.Result, len(batch))
		for i, d := range batch {
			out[i] = advisory.Result{Descriptor: d, Advisories: byName[d.Name]}
		}
		return out
	}
}

// panicEngine blows up on every Python file.
type panicEngine struct{}

func (panicEngine) Name() string             { return "exploding" }
func (panicEngine) Extensions() []string     { return []string{".py"} }
func (panicEngine) Applies(p string) bool    { return strings.HasSuffix(p, ".py") }
func (panicEngine) Scan(context.Context, string, []byte) ([]finding.Finding, error) {
	panic("index out of range")
}

// cancelEngine cancels the scan when it reaches a given file.
type cancelEngine struct {
	at     string
	cancel context.CancelFunc
}

func (cancelEngine) Name() string          { return "canceller" }
func (cancelEngine) Extensions() []string  { return []string{".py"} }
func (cancelEngine) Applies(p string) bool { return strings.HasSuffix(p, ".py") }
func (e cancelEngine) Scan(_ context.Context, p string, _ []byte) ([]finding.Finding, error) {
	if p == e.at {
		e.cancel()
	}
	return nil, nil
}

func newTestScanner(src source.FileSource, engines ...engine.Engine) *Scanner {
	if len(engines) == 0 {
		engines = engine.Defaults(engine.DependencyOptions{}, engine.DefaultSecretOptions())
	}
	s := New(src, engines)
	s.Workers = 4
	return s
}

const sqlConcat = "def get(userId):\n    query = \"SELECT * FROM users WHERE id = \" + userId\n    return db.execute(query)\n"

func TestScan_SQLConcatenationReported(t *testing.T) {
	src := source.NewMemorySource(map[string]string{"app/users.py": sqlConcat})

	res, err := newTestScanner(src).Scan(context.Background(), Request{RepositoryURL: "mem://app"})
	require.NoError(t, err)

	var injection []finding.Finding
	for _, f := range res.Findings() {
		if f.Category == finding.Injection {
			injection = append(injection, f)
		}
	}
	require.Len(t, injection, 1)
	f := injection[0]
	assert.Contains(t, []finding.Severity{finding.Critical, finding.High}, f.Severity)
	assert.Equal(t, "app/users.py", f.FilePath)
	assert.Equal(t, 2, f.Line)
	assert.Equal(t, engine.NameCodePattern, f.Scanner)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.FilesScanned)
	assert.Nil(t, res.NextChunk)
	assert.Zero(t, res.Remaining)
	assert.NotEmpty(t, res.ScanID)
	assert.Contains(t, res.ScannersUsed, engine.NameCodePattern)
}

func TestScan_CriticalAdvisoryReported(t *testing.T) {
	client := new(MockAdvisoryClient)
	client.On("Lookup", mock.Anything, mock.Anything).Return(respond(map[string][]advisory.Advisory{
		"django": {{ID: "GHSA-2gwj-7jmv-h26r", Aliases: []string{"CVE-2022-28346"}, Summary: "SQL injection in QuerySet.annotate()", Score: 9.8, Fixed: "2.2.28"}},
	}), nil)

	src := source.NewMemorySource(map[string]string{"requirements.txt": "django==2.2.0\n"})
	engines := engine.Defaults(engine.DependencyOptions{Client: client}, engine.DefaultSecretOptions())

	res, err := newTestScanner(src, engines...).Scan(context.Background(), Request{RepositoryURL: "mem://app"})
	require.NoError(t, err)

	require.Equal(t, 1, res.Total)
	require.Len(t, res.Critical, 1)
	f := res.Critical[0]
	assert.Equal(t, finding.Dependency, f.Category)
	assert.Equal(t, engine.NameDependency, f.Scanner)
	assert.Equal(t, "requirements.txt", f.FilePath)
	assert.Equal(t, "CVE-2022-28346", f.ReferenceID)
	assert.Equal(t, 25, res.RiskScore)
	client.AssertNumberOfCalls(t, "Lookup", 1)
}

func fiveFiles() map[string]string {
	return map[string]string{
		"a.py": "print('a')\n",
		"b.py": "print('b')\n",
		"c.py": "print('c')\n",
		"d.py": "print('d')\n",
		"e.py": "print('e')\n",
	}
}

func TestScan_ChunksResumeAtCursor(t *testing.T) {
	s := newTestScanner(source.NewMemorySource(fiveFiles()))
	ctx := context.Background()

	first, err := s.Scan(ctx, Request{RepositoryURL: "mem://five", MaxFiles: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, first.FilesScanned)
	assert.Equal(t, 3, first.Remaining)
	assert.Equal(t, 5, first.TotalFiles)
	require.NotNil(t, first.NextChunk)
	assert.Equal(t, []string{"a.py", "b.py"}, first.ScannedFiles)

	second, err := s.Scan(ctx, Request{RepositoryURL: "mem://five", MaxFiles: 3, ChunkStart: first.NextChunk})
	require.NoError(t, err)
	assert.Equal(t, 3, second.FilesScanned)
	assert.Zero(t, second.Remaining)
	assert.Nil(t, second.NextChunk)
	assert.Equal(t, []string{"c.py", "d.py", "e.py"}, second.ScannedFiles)
}

func findingRepo() map[string]string {
	return map[string]string{
		"app/users.py":             sqlConcat,
		"app/settings.py":          "DEBUG = True\nALLOWED_HOSTS = ['*']\nSECRET_KEY = 'changeme'\n",
		"deploy/aws.py":            "AWS_ACCESS_KEY_ID = \"AKIAZ7QW3R9T5Y2U8I4P\"\n",
		"Dockerfile":               "FROM python:latest\nCOPY . /app\n",
		"web/server.js":            "const app = express();\napp.use(cors({ origin: '*' }));\neval(req.query.code);\n",
		"requirements.txt":         "django==2.2.0\nrequests==2.31.0\n",
		".github/workflows/ci.yml": "on: pull_request_target\njobs:\n  build:\n    runs-on: ubuntu-latest\n    steps:\n      - uses: some/action@main\n",
		"lib/util.py":              "def add(a, b):\n    return a + b\n",
	}
}

func findingEngines(t *testing.T) []engine.Engine {
	client := new(MockAdvisoryClient)
	client.On("Lookup", mock.Anything, mock.Anything).Return(respond(map[string][]advisory.Advisory{
		"django": {{ID: "GHSA-1", Score: 9.8, Fixed: "2.2.28"}, {ID: "GHSA-2", Score: 5.3}},
	}), nil)
	return engine.Defaults(engine.DependencyOptions{Client: client}, engine.DefaultSecretOptions())
}

func TestScan_ChunkCoverageMatchesSingleScan(t *testing.T) {
	files := findingRepo()
	ctx := context.Background()
	s := newTestScanner(source.NewMemorySource(files), findingEngines(t)...)

	whole, err := s.Scan(ctx, Request{RepositoryURL: "mem://repo", MaxFiles: 100, IncludeLowConfidence: true})
	require.NoError(t, err)
	require.NotZero(t, whole.Total)

	for _, size := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("chunk=%d", size), func(t *testing.T) {
			var merged *Result
			var cursor *source.Cursor
			seen := map[string]int{}
			for {
				res, err := s.Scan(ctx, Request{RepositoryURL: "mem://repo", MaxFiles: size, ChunkStart: cursor, IncludeLowConfidence: true})
				require.NoError(t, err)
				for _, p := range res.ScannedFiles {
					seen[p]++
				}
				merged = MergeResults(merged, res)
				if res.NextChunk == nil {
					break
				}
				cursor = res.NextChunk
			}

			for p, n := range seen {
				assert.Equal(t, 1, n, "%s scanned more than once", p)
			}
			assert.Equal(t, whole.FilesScanned, merged.FilesScanned)
			assert.ElementsMatch(t, whole.ScannedFiles, merged.ScannedFiles)
			assert.Equal(t, whole.Findings(), merged.Findings())
			assert.Equal(t, whole.Summary, merged.Summary)
			assert.Equal(t, whole.RiskScore, merged.RiskScore)
			assert.Zero(t, merged.Remaining)
		})
	}
}

func TestScan_Deterministic(t *testing.T) {
	s := newTestScanner(source.NewMemorySource(findingRepo()), findingEngines(t)...)
	s.Workers = 8

	first, err := s.Scan(context.Background(), Request{RepositoryURL: "mem://repo"})
	require.NoError(t, err)
	for range 5 {
		again, err := s.Scan(context.Background(), Request{RepositoryURL: "mem://repo"})
		require.NoError(t, err)
		assert.Equal(t, first.Findings(), again.Findings())
		assert.Equal(t, first.ScannedFiles, again.ScannedFiles)
		assert.Equal(t, first.ScannersUsed, again.ScannersUsed)
	}
}

func TestScan_SeverityPartition(t *testing.T) {
	s := newTestScanner(source.NewMemorySource(findingRepo()), findingEngines(t)...)

	for _, include := range []bool{false, true} {
		res, err := s.Scan(context.Background(), Request{RepositoryURL: "mem://repo", IncludeLowConfidence: include})
		require.NoError(t, err)

		assert.Equal(t, res.Total, len(res.Critical)+len(res.High)+len(res.Medium)+len(res.Low))
		assert.Equal(t, res.Total, res.Summary.Total())
		assert.Equal(t, finding.RiskScore(res.Summary), res.RiskScore)
		for sev, group := range map[finding.Severity][]finding.Finding{
			finding.Critical: res.Critical, finding.High: res.High, finding.Medium: res.Medium, finding.Low: res.Low,
		} {
			for _, f := range group {
				assert.Equal(t, sev, f.Severity)
			}
		}
		if !include {
			for _, f := range res.Findings() {
				assert.NotEqual(t, finding.ConfidenceLow, f.Confidence)
			}
		}
	}
}

func TestScan_LowConfidenceFilteredButCounted(t *testing.T) {
	s := newTestScanner(source.NewMemorySource(findingRepo()), findingEngines(t)...)

	filtered, err := s.Scan(context.Background(), Request{RepositoryURL: "mem://repo"})
	require.NoError(t, err)
	all, err := s.Scan(context.Background(), Request{RepositoryURL: "mem://repo", IncludeLowConfidence: true})
	require.NoError(t, err)

	assert.Zero(t, all.FilteredLowConfidence)
	assert.Equal(t, all.Total, filtered.Total+filtered.FilteredLowConfidence)
}

func TestScan_EnginePanicIsolated(t *testing.T) {
	src := source.NewMemorySource(map[string]string{"app/users.py": sqlConcat})
	engines := append([]engine.Engine{panicEngine{}}, engine.NewCodeEngine())
	m := metrics.NewMetrics()
	s := newTestScanner(src, engines...)
	s.Metrics = m

	res, err := s.Scan(context.Background(), Request{RepositoryURL: "mem://app"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.FilesScanned)
	assert.NotZero(t, res.Total, "findings from healthy engines survive")
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, KindEnginePanic, res.Warnings[0].Kind)
	assert.Equal(t, "exploding", res.Warnings[0].Engine)
	assert.Equal(t, "app/users.py", res.Warnings[0].File)
}

func TestScan_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		src  source.FileSource
		req  Request
	}{
		{"empty repository", source.NewMemorySource(nil), Request{}},
		{"negative max files", source.NewMemorySource(nil), Request{RepositoryURL: "mem://x", MaxFiles: -1}},
		{"negative cursor", source.NewMemorySource(nil), Request{RepositoryURL: "mem://x", ChunkStart: func() *source.Cursor { c := source.Cursor(-3); return &c }()}},
		{"malformed url", source.NewGitHubSource(""), Request{RepositoryURL: "ftp://example.com/nothing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestScanner(tt.src).Scan(context.Background(), tt.req)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestScan_DefaultMaxFiles(t *testing.T) {
	files := map[string]string{}
	for i := range DefaultMaxFiles + 3 {
		files[fmt.Sprintf("pkg/f%04d.py", i)] = "x = 1\n"
	}
	res, err := newTestScanner(source.NewMemorySource(files)).Scan(context.Background(), Request{RepositoryURL: "mem://big"})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxFiles, res.FilesScanned)
	assert.Equal(t, 3, res.Remaining)
	require.NotNil(t, res.NextChunk)
	assert.Equal(t, source.Cursor(DefaultMaxFiles), *res.NextChunk)
}

func TestScan_FetchErrors(t *testing.T) {
	src := source.NewMemorySource(map[string]string{
		"a.py":   "print('a')\n",
		"b.py":   "print('b')\n",
		"c.py":   "print('c')\n",
		"big.py": strings.Repeat("x = 1\n", 100),
	})
	src.FetchErr = map[string]error{
		"a.py": errors.New("connection reset by peer"),
		"b.py": fmt.Errorf("b.py: %w", source.ErrNotFound),
	}
	s := newTestScanner(src)
	s.MaxFileBytes = 64

	res, err := s.Scan(context.Background(), Request{RepositoryURL: "mem://x"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Incomplete, "a transient fetch failure marks the result incomplete")
	assert.Equal(t, 1, res.FilesScanned)
	assert.Equal(t, []string{"c.py"}, res.ScannedFiles)
	assert.ElementsMatch(t, []SkippedFile{
		{Path: "a.py", Reason: KindFetchFailed},
		{Path: "b.py", Reason: KindNotFound},
		{Path: "big.py", Reason: KindTooLarge},
	}, res.FilesSkipped)

	kinds := map[string]string{}
	for _, w := range res.Warnings {
		kinds[w.File] = w.Kind
	}
	assert.Equal(t, KindFetchFailed, kinds["a.py"])
	assert.Equal(t, KindNotFound, kinds["b.py"])
}

func TestScan_ParseErrorIsSoft(t *testing.T) {
	client := new(MockAdvisoryClient)
	client.On("Lookup", mock.Anything, mock.Anything).Return(respond(nil), nil)
	src := source.NewMemorySource(map[string]string{
		"package.json": "{not json",
		"app/users.py": sqlConcat,
	})
	engines := engine.Defaults(engine.DependencyOptions{Client: client}, engine.DefaultSecretOptions())

	res, err := newTestScanner(src, engines...).Scan(context.Background(), Request{RepositoryURL: "mem://x"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.FilesScanned)
	assert.NotZero(t, res.Total)
	var parse []Warning
	for _, w := range res.Warnings {
		if w.Kind == KindParseError {
			parse = append(parse, w)
		}
	}
	require.Len(t, parse, 1)
	assert.Equal(t, "package.json", parse[0].File)
	assert.Equal(t, engine.NameDependency, parse[0].Engine)
}

func TestScan_AdvisoryIncomplete(t *testing.T) {
	client := new(MockAdvisoryClient)
	client.On("Lookup", mock.Anything, mock.Anything).Return(func(batch []manifest.Descriptor) []advisory.Result {
		out := respond(map[string][]advisory.Advisory{"django": {{ID: "GHSA-1", Score: 9.1}}})(batch)
		for i := range out {
			if out[i].Descriptor.Name != "django" {
				out[i].Err = advisory.ErrBatchFailed
			}
		}
		return out
	}, fmt.Errorf("1 of 2 batches failed: %w", advisory.ErrIncomplete))

	src := source.NewMemorySource(map[string]string{"requirements.txt": "django==2.2.0\nflask==0.12\n"})
	engines := engine.Defaults(engine.DependencyOptions{Client: client}, engine.DefaultSecretOptions())

	res, err := newTestScanner(src, engines...).Scan(context.Background(), Request{RepositoryURL: "mem://x"})
	require.NoError(t, err)
	assert.True(t, res.Incomplete)
	assert.Equal(t, 1, res.Summary.Critical, "resolved packages keep their findings")
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, KindAdvisoryIncomplete, res.Warnings[0].Kind)
}

func TestScan_CancelledBeforeListing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestScanner(source.NewMemorySource(fiveFiles())).Scan(ctx, Request{RepositoryURL: "mem://five"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.Incomplete)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, KindCancelled, res.Warnings[0].Kind)
	require.NotNil(t, res.NextChunk)
	assert.Equal(t, source.Cursor(0), *res.NextChunk)
	assert.Zero(t, res.Total)
}

func TestScan_CancelledMidScanResumes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newTestScanner(source.NewMemorySource(fiveFiles()), cancelEngine{at: "b.py", cancel: cancel})
	s.Workers = 1

	res, err := s.Scan(ctx, Request{RepositoryURL: "mem://five"})
	require.NoError(t, err)

	assert.True(t, res.Incomplete)
	assert.Equal(t, []string{"a.py"}, res.ScannedFiles)
	require.NotNil(t, res.NextChunk)
	assert.Equal(t, source.Cursor(1), *res.NextChunk)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, KindCancelled, res.Warnings[len(res.Warnings)-1].Kind)

	// Resuming from the cursor picks up exactly where the scan stopped.
	rest, err := newTestScanner(source.NewMemorySource(fiveFiles())).Scan(context.Background(), Request{RepositoryURL: "mem://five", ChunkStart: res.NextChunk})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.py", "c.py", "d.py", "e.py"}, rest.ScannedFiles)
	assert.Nil(t, rest.NextChunk)
}

func TestScan_EmptyRepository(t *testing.T) {
	res, err := newTestScanner(source.NewMemorySource(map[string]string{"README.md": "# hi\n"})).Scan(context.Background(), Request{RepositoryURL: "mem://empty"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.FilesScanned)
	assert.Zero(t, res.RiskScore)
	assert.NotNil(t, res.Critical)
	assert.Nil(t, res.NextChunk)
}
