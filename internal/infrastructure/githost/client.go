// Package githost implements the ports.GitHost adapter against the
// GitHub REST API, using the low-level object-graph endpoints so the
// publisher can update several files in one atomic commit.
package githost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"gatekeeper/internal/core/ports"
	apperrors "gatekeeper/pkg/errors"
)

const (
	acceptHeader     = "application/vnd.github+json"
	apiVersionHeader = "2022-11-28"
)

// Client talks to the remote repository REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClient creates a client for the given API base URL, e.g.
// "https://api.github.com".
func NewClient(baseURL string, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
}

var _ ports.GitHost = (*Client)(nil)

type refResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type commitResponse struct {
	SHA  string `json:"sha"`
	Tree struct {
		SHA string `json:"sha"`
	} `json:"tree"`
}

type shaResponse struct {
	SHA string `json:"sha"`
}

// GetBranchHead resolves the tip commit of the branch.
func (c *Client) GetBranchHead(ctx context.Context, target ports.RepoTarget, branch string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", target.Owner, target.Repo, branch)

	var ref refResponse
	if err := c.do(ctx, http.MethodGet, path, target.Token, nil, &ref); err != nil {
		return "", err
	}
	return ref.Object.SHA, nil
}

// GetCommitTree resolves the tree of a commit.
func (c *Client) GetCommitTree(ctx context.Context, target ports.RepoTarget, commitSHA string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/git/commits/%s", target.Owner, target.Repo, commitSHA)

	var commit commitResponse
	if err := c.do(ctx, http.MethodGet, path, target.Token, nil, &commit); err != nil {
		return "", err
	}
	return commit.Tree.SHA, nil
}

// CreateBlob uploads one file payload as a blob object.
func (c *Client) CreateBlob(ctx context.Context, target ports.RepoTarget, content string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/git/blobs", target.Owner, target.Repo)
	body := map[string]string{
		"content":  content,
		"encoding": "utf-8",
	}

	var blob shaResponse
	if err := c.do(ctx, http.MethodPost, path, target.Token, body, &blob); err != nil {
		return "", err
	}
	return blob.SHA, nil
}

// CreateTree layers path replacements on top of a base tree.
func (c *Client) CreateTree(ctx context.Context, target ports.RepoTarget, baseTreeSHA string, entries []ports.TreeEntry) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/git/trees", target.Owner, target.Repo)

	type treeEntry struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	}
	payload := struct {
		BaseTree string      `json:"base_tree"`
		Tree     []treeEntry `json:"tree"`
	}{BaseTree: baseTreeSHA}
	for _, e := range entries {
		payload.Tree = append(payload.Tree, treeEntry{Path: e.Path, Mode: e.Mode, Type: e.Type, SHA: e.SHA})
	}

	var tree shaResponse
	if err := c.do(ctx, http.MethodPost, path, target.Token, payload, &tree); err != nil {
		return "", err
	}
	return tree.SHA, nil
}

// CreateCommit creates a commit object pointing at the tree.
func (c *Client) CreateCommit(ctx context.Context, target ports.RepoTarget, message, treeSHA string, parents []string, author *ports.CommitIdentity) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/git/commits", target.Owner, target.Repo)

	payload := map[string]interface{}{
		"message": message,
		"tree":    treeSHA,
		"parents": parents,
	}
	if author != nil {
		identity := map[string]string{"name": author.Name, "email": author.Email}
		payload["author"] = identity
		payload["committer"] = identity
	}

	var commit shaResponse
	if err := c.do(ctx, http.MethodPost, path, target.Token, payload, &commit); err != nil {
		return "", err
	}
	return commit.SHA, nil
}

// UpdateBranchRef fast-forwards the branch ref to sha, non-forced.
func (c *Client) UpdateBranchRef(ctx context.Context, target ports.RepoTarget, branch, sha string) error {
	path := fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", target.Owner, target.Repo, branch)
	body := map[string]interface{}{
		"sha":   sha,
		"force": false,
	}
	return c.do(ctx, http.MethodPatch, path, target.Token, body, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-GitHub-Api-Version", apiVersionHeader)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		c.logger.Warnw("remote repository API call failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
		)
		return apperrors.NewRemoteAPIError(path, resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
