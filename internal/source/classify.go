package source

import (
	"path"
	"regexp"
	"sort"
	"strings"
)

var dependencyNames = compileAll(
	`^requirements\.txt$`,
	`^requirements[-_].*\.txt$`,
	`^(dev|test)[-_]?requirements\.txt$`,
	`^Pipfile(\.lock)?$`,
	`^pyproject\.toml$`,
	`^poetry\.lock$`,
	`^setup\.(py|cfg)$`,
	`^package(-lock)?\.json$`,
	`^yarn\.lock$`,
	`^pnpm-lock\.yaml$`,
	`^pom\.xml$`,
	`^build\.gradle(\.kts)?$`,
	`^go\.(mod|sum)$`,
	`^Cargo\.(toml|lock)$`,
	`^Gemfile(\.lock)?$`,
	`^composer\.(json|lock)$`,
)

var configPaths = compileAll(
	`(^|/)\.env(\..*)?$`,
	`(^|/)Dockerfile(\..*)?$`,
	`(^|/)docker-compose(\..*)?\.ya?ml$`,
	`(^|/)compose\.ya?ml$`,
	`kubernetes.*\.ya?ml$`,
	`k8s.*\.ya?ml$`,
	`(^|/)\.github/workflows/.*\.ya?ml$`,
	`(^|/)\.github/actions/.*\.ya?ml$`,
	`(^|/)\.gitlab-ci\.ya?ml$`,
	`(^|/)Jenkinsfile$`,
	`(^|/)\.travis\.ya?ml$`,
	`(^|/)\.circleci/.*\.ya?ml$`,
	`(^|/)azure-pipelines\.ya?ml$`,
	`(^|/)bitbucket-pipelines\.ya?ml$`,
	`(^|/)(nginx|apache)\.conf$`,
	`(^|/)\.htaccess$`,
	`settings\.py$`,
	`config\.(py|js|ts)$`,
	`(^|/)app\.(ya?ml|json)$`,
	`(^|/)application\.(ya?ml|properties)$`,
)

var sourceExts = map[string]bool{
	".py": true, ".js": true, ".mjs": true, ".cjs": true, ".ts": true, ".jsx": true, ".tsx": true,
	".java": true, ".kt": true, ".scala": true, ".go": true, ".rb": true, ".php": true, ".cs": true,
	".rs": true, ".c": true, ".cpp": true, ".h": true, ".hpp": true, ".swift": true, ".vue": true,
	".svelte": true, ".sql": true, ".sh": true, ".bash": true, ".zsh": true, ".ps1": true,
	".html": true, ".erb": true, ".yaml": true, ".yml": true, ".json": true, ".toml": true,
	".ini": true, ".cfg": true, ".conf": true, ".properties": true, ".xml": true,
}

var skipPaths = compileAll(
	`(^|/)node_modules/`,
	`(^|/)vendor/`,
	`(^|/)\.git/`,
	`^dist/`,
	`^build/`,
	`(^|/)__pycache__/`,
	`^\.(next|nuxt)/`,
	`^coverage/`,
	`^\.(pytest|mypy)_cache/`,
	`^(venv|env|\.venv|virtualenv)/`,
	`^static/`,
	`^public/assets/`,
	`^test_data/`,
	`^fixtures/`,
	`\.min\.(js|css)$`,
	`\.map$`,
	`\.(pyc|pyo|class|o|so|dll|exe|bin|jar|war)$`,
	`\.(png|jpe?g|gif|svg|ico|webp|bmp)$`,
	`\.(woff2?|ttf|eot|otf)$`,
	`\.(mp4|mp3|wav|avi|mov|webm)$`,
	`\.(pdf|docx?|xlsx?|pptx?)$`,
	`\.(zip|tar|gz|tgz|rar|7z)$`,
	`\.(spec|test)\.[^/]+$`,
	`_test\.[^/]+$`,
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Classify ranks a repository-relative path. ok is false for files that
// are never scanned: skip-listed paths and unknown file types.
func Classify(p string) (rank Rank, ok bool) {
	p = strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, `\`, "/")), "./")
	if matchAny(skipPaths, p) {
		return 0, false
	}
	if matchAny(dependencyNames, path.Base(p)) {
		return RankDependency, true
	}
	if matchAny(configPaths, p) {
		return RankConfig, true
	}
	if sourceExts[strings.ToLower(path.Ext(p))] {
		return RankSource, true
	}
	return 0, false
}

// Depth is the number of directories above p.
func Depth(p string) int {
	return strings.Count(strings.Trim(p, "/"), "/")
}

// Order sorts files by rank, then directory depth, then path. Every
// source uses it so a cursor means the same thing across calls.
func Order(files []File) {
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		if da, db := Depth(a.Path), Depth(b.Path); da != db {
			return da < db
		}
		return a.Path < b.Path
	})
}

// Select classifies paths and returns the ordered scannable files plus the
// number that were ignored. sizes may be nil.
func Select(paths []string, sizes map[string]int64) ([]File, int) {
	files := make([]File, 0, len(paths))
	ignored := 0
	for _, p := range paths {
		rank, ok := Classify(p)
		if !ok {
			ignored++
			continue
		}
		files = append(files, File{Path: p, Rank: rank, Size: sizes[p]})
	}
	Order(files)
	return files, ignored
}
