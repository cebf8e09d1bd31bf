package githost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gatekeeper/internal/core/ports"
	apperrors "gatekeeper/pkg/errors"
)

var target = ports.RepoTarget{Owner: "example", Repo: "whitelist", Token: "tok"}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, zaptest.NewLogger(t).Sugar())
}

func TestGetBranchHead(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/example/whitelist/git/refs/heads/main", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("X-GitHub-Api-Version"))

		fmt.Fprint(w, `{"object":{"sha":"abc123"}}`)
	}))

	sha, err := client.GetBranchHead(context.Background(), target, "main")
	require.NoError(t, err)
	assert.Equal(t, "abc123", sha)
}

func TestCreateBlobSendsUTF8Content(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/example/whitelist/git/blobs", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "UserA,station", body["content"])
		assert.Equal(t, "utf-8", body["encoding"])

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"sha":"blobsha"}`)
	}))

	sha, err := client.CreateBlob(context.Background(), target, "UserA,station")
	require.NoError(t, err)
	assert.Equal(t, "blobsha", sha)
}

func TestCreateTreeLayersOnBaseTree(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			BaseTree string `json:"base_tree"`
			Tree     []struct {
				Path string `json:"path"`
				Mode string `json:"mode"`
				Type string `json:"type"`
				SHA  string `json:"sha"`
			} `json:"tree"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "basetree", body.BaseTree)
		require.Len(t, body.Tree, 2)
		assert.Equal(t, "whitelist.txt", body.Tree[0].Path)
		assert.Equal(t, "100644", body.Tree[0].Mode)
		assert.Equal(t, "blob", body.Tree[0].Type)

		fmt.Fprint(w, `{"sha":"treesha"}`)
	}))

	entries := []ports.TreeEntry{
		{Path: "whitelist.txt", Mode: "100644", Type: "blob", SHA: "b1"},
		{Path: "whitelist.dat", Mode: "100644", Type: "blob", SHA: "b2"},
	}
	sha, err := client.CreateTree(context.Background(), target, "basetree", entries)
	require.NoError(t, err)
	assert.Equal(t, "treesha", sha)
}

func TestUpdateBranchRefNonForced(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "newsha", body["sha"])
		assert.Equal(t, false, body["force"])

		fmt.Fprint(w, `{"object":{"sha":"newsha"}}`)
	}))

	err := client.UpdateBranchRef(context.Background(), target, "main", "newsha")
	assert.NoError(t, err)
}

func TestNon2xxBecomesRemoteAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"Update is not a fast forward"}`)
	}))

	err := client.UpdateBranchRef(context.Background(), target, "main", "stale")
	require.Error(t, err)

	apiErr, ok := apperrors.IsRemoteAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Contains(t, apiErr.Body, "fast forward")
}
