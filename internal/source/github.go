package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var repoURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:https?://|git@|ssh://git@)?(?:www\.)?github\.com[/:]([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+?)(?:\.git)?/?$`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?github\.com/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+?)(?:\.git)?(?:/.*)?$`),
}

// ParseRepoURL extracts owner and repository name from a GitHub URL.
func ParseRepoURL(raw string) (owner, repo string, err error) {
	raw = strings.TrimSpace(raw)
	for _, re := range repoURLPatterns {
		if m := re.FindStringSubmatch(raw); m != nil {
			if m[1] == "." || m[1] == ".." || m[2] == "." || m[2] == ".." {
				break
			}
			return m[1], m[2], nil
		}
	}
	return "", "", fmt.Errorf("%w: %q is not a GitHub repository URL", ErrInvalidRepository, raw)
}

// GitHubSource reads repositories through the GitHub REST API without
// cloning them.
type GitHubSource struct {
	BaseURL string
	Token   string
	Client  *http.Client
	Logger  *slog.Logger
}

// NewGitHubSource creates a source for api.github.com. An empty token
// works for public repositories at a lower rate limit.
func NewGitHubSource(token string) *GitHubSource {
	return &GitHubSource{
		BaseURL: "https://api.github.com",
		Token:   token,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
		Logger: slog.Default(),
	}
}

type ghRepo struct {
	DefaultBranch string `json:"default_branch"`
}

type ghTree struct {
	Truncated bool `json:"truncated"`
	Tree      []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		Size int64  `json:"size"`
	} `json:"tree"`
}

type ghContent struct {
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

func (g *GitHubSource) ValidateRepository(repo string) error {
	_, _, err := ParseRepoURL(repo)
	return err
}

// ListFiles fetches the recursive tree of the default branch and returns
// one page of it in scan order.
func (g *GitHubSource) ListFiles(ctx context.Context, repo string, start Cursor, limit int) (Listing, error) {
	owner, name, err := ParseRepoURL(repo)
	if err != nil {
		return Listing{}, err
	}

	var meta ghRepo
	if err := g.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s", g.BaseURL, owner, name), &meta); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Listing{}, fmt.Errorf("%w: repository %s/%s not found", ErrInvalidRepository, owner, name)
		}
		return Listing{}, fmt.Errorf("repository %s/%s: %w", owner, name, err)
	}
	branch := meta.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	var tree ghTree
	treeURL := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", g.BaseURL, owner, name, url.PathEscape(branch))
	if err := g.getJSON(ctx, treeURL, &tree); err != nil {
		return Listing{}, fmt.Errorf("tree %s/%s@%s: %w", owner, name, branch, err)
	}
	if tree.Truncated {
		g.logger().Warn("repository tree truncated by GitHub", "repository", owner+"/"+name, "entries", len(tree.Tree))
	}

	paths := make([]string, 0, len(tree.Tree))
	sizes := make(map[string]int64, len(tree.Tree))
	for _, item := range tree.Tree {
		if item.Type != "blob" {
			continue
		}
		paths = append(paths, item.Path)
		sizes[item.Path] = item.Size
	}

	files, ignored := Select(paths, sizes)
	l := Page(files, start, limit)
	l.Ignored = ignored
	return l, nil
}

// FetchContent reads one file through the contents API.
func (g *GitHubSource) FetchContent(ctx context.Context, repo, path string, maxBytes int64) ([]byte, error) {
	owner, name, err := ParseRepoURL(repo)
	if err != nil {
		return nil, err
	}

	var c ghContent
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.BaseURL, owner, name, escapePath(path))
	if err := g.getJSON(ctx, endpoint, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if c.Type != "" && c.Type != "file" {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if maxBytes > 0 && c.Size > maxBytes {
		return nil, fmt.Errorf("%s (%d bytes): %w", path, c.Size, ErrTooLarge)
	}

	switch c.Encoding {
	case "base64":
		data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(c.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if maxBytes > 0 && int64(len(data)) > maxBytes {
			return nil, fmt.Errorf("%s (%d bytes): %w", path, len(data), ErrTooLarge)
		}
		return data, nil
	case "", "utf-8":
		return []byte(c.Content), nil
	default:
		// "none" is what GitHub returns for blobs it will not inline.
		return nil, fmt.Errorf("%s: unsupported encoding %q: %w", path, c.Encoding, ErrTooLarge)
	}
}

func (g *GitHubSource) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	g.setHeaders(req)

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return fmt.Errorf("%w (reset %s)", ErrRateLimited, resp.Header.Get("X-RateLimit-Reset"))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("github api error: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (g *GitHubSource) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "codebot")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
}

func (g *GitHubSource) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func escapePath(p string) string {
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
