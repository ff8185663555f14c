package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		rank Rank
		ok   bool
	}{
		{"requirements.txt", RankDependency, true},
		{"backend/requirements-dev.txt", RankDependency, true},
		{"package-lock.json", RankDependency, true},
		{"services/api/go.mod", RankDependency, true},
		{"Cargo.lock", RankDependency, true},
		{"pom.xml", RankDependency, true},
		{".env.production", RankConfig, true},
		{"deploy/Dockerfile", RankConfig, true},
		{"docker-compose.prod.yml", RankConfig, true},
		{".github/workflows/ci.yml", RankConfig, true},
		{".gitlab-ci.yml", RankConfig, true},
		{"Jenkinsfile", RankConfig, true},
		{"mysite/settings.py", RankConfig, true},
		{"app/views.py", RankSource, true},
		{"src/index.ts", RankSource, true},
		{"cmd/main.go", RankSource, true},
		{"node_modules/lodash/index.js", 0, false},
		{"web/node_modules/x/package.json", 0, false},
		{"dist/bundle.js", 0, false},
		{"assets/app.min.js", 0, false},
		{"logo.PNG", 0, false},
		{"src/app.test.js", 0, false},
		{"pkg/handler_test.go", 0, false},
		{"README.md", 0, false},
		{"LICENSE", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rank, ok := Classify(tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.rank, rank)
			}
		})
	}
}

func TestOrder(t *testing.T) {
	files, ignored := Select([]string{
		"src/deep/nested/util.py",
		"app.py",
		"README.md",
		"Dockerfile",
		"src/main.py",
		"web/package.json",
		"requirements.txt",
		".github/workflows/ci.yml",
	}, nil)

	var got []string
	for _, f := range files {
		got = append(got, f.Path)
	}
	assert.Equal(t, []string{
		"requirements.txt",
		"web/package.json",
		"Dockerfile",
		".github/workflows/ci.yml",
		"app.py",
		"src/main.py",
		"src/deep/nested/util.py",
	}, got)
	assert.Equal(t, 1, ignored)
}

func TestPage(t *testing.T) {
	files := make([]File, 5)
	for i := range files {
		files[i] = File{Path: string(rune('a' + i))}
	}

	l := Page(files, 0, 2)
	assert.Len(t, l.Files, 2)
	assert.Equal(t, 3, l.Remaining)
	assert.Equal(t, 5, l.Total)
	if assert.NotNil(t, l.Next) {
		assert.Equal(t, Cursor(2), *l.Next)
	}

	l = Page(files, 2, 3)
	assert.Equal(t, []File{{Path: "c"}, {Path: "d"}, {Path: "e"}}, l.Files)
	assert.Zero(t, l.Remaining)
	assert.Nil(t, l.Next)

	l = Page(files, 9, 3)
	assert.Empty(t, l.Files)
	assert.Nil(t, l.Next)

	l = Page(files, 1, 0)
	assert.Len(t, l.Files, 4)
	assert.Nil(t, l.Next)
}
