package ports

import (
	"context"

	"gatekeeper/internal/core/domain"
)

// IdentityProvider is the read-only external identity source.
type IdentityProvider interface {
	// GetUserByID resolves an external identity. A missing identity is
	// reported as (nil, nil), not an error.
	GetUserByID(ctx context.Context, externalID string) (*domain.IdentityProfile, error)
}

// DisplayNameCache caches refreshed identity display names so repeated
// content generation does not hammer the rate-limited provider.
type DisplayNameCache interface {
	Get(ctx context.Context, externalID string) (string, bool)
	Set(ctx context.Context, externalID, displayName string)
}

// RepoTarget addresses one remote repository with its credentials.
type RepoTarget struct {
	Owner string
	Repo  string
	Token string
}

// TreeEntry is one path replacement in a newly created tree object.
type TreeEntry struct {
	Path string
	Mode string
	Type string
	SHA  string
}

// CommitIdentity is an optional author/committer identity.
type CommitIdentity struct {
	Name  string
	Email string
}

// GitHost exposes the low-level object-graph protocol of the remote
// repository API. The publisher drives these to build one atomic
// multi-file commit; implementations translate any non-2xx response into
// an apperrors.RemoteAPIError.
type GitHost interface {
	GetBranchHead(ctx context.Context, target RepoTarget, branch string) (string, error)
	GetCommitTree(ctx context.Context, target RepoTarget, commitSHA string) (string, error)
	CreateBlob(ctx context.Context, target RepoTarget, content string) (string, error)
	CreateTree(ctx context.Context, target RepoTarget, baseTreeSHA string, entries []TreeEntry) (string, error)
	CreateCommit(ctx context.Context, target RepoTarget, message, treeSHA string, parents []string, author *CommitIdentity) (string, error)
	// UpdateBranchRef fast-forwards the branch to sha. The update is
	// non-forced: if the ref moved concurrently the remote error surfaces.
	UpdateBranchRef(ctx context.Context, target RepoTarget, branch, sha string) error
}

// CachePurger invalidates CDN-cached copies of derived HTTP endpoints.
type CachePurger interface {
	PurgeURLs(ctx context.Context, zoneID, token string, urls []string) error
}
