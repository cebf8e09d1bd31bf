package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"gatekeeper/internal/core/domain"
	"gatekeeper/internal/core/ports"
	"gatekeeper/pkg/config"
	apperrors "gatekeeper/pkg/errors"
	"gatekeeper/pkg/tracing"
)

// ReasonUnchanged is returned when a publish short-circuits because the
// generated content matches the last published snapshot.
const ReasonUnchanged = "Content unchanged"

// DerivedTokens is the fixed token set that triggers side generation of
// per-token name lists in a second commit.
var DerivedTokens = []domain.Token{"rooftop", "station"}

// PublishRequest describes one publish attempt.
type PublishRequest struct {
	// Message is the commit message; empty means a default is used.
	Message string
	// Force skips change detection.
	Force bool
	// RealmID scopes content generation and repository selection. Empty
	// means the process-wide repository and an unscoped whitelist.
	RealmID string
	// AffectedRealmIDs narrows CDN purging when no explicit realm is set.
	AffectedRealmIDs []string
	// AffectedUserIDs narrows derived side generation to users touched by
	// the triggering batch. Empty means all whitelisted users.
	AffectedUserIDs []string
}

// PublishResult reports the outcome of a publish attempt.
type PublishResult struct {
	Updated   bool     `json:"updated"`
	CommitSHA string   `json:"commit_sha,omitempty"`
	Paths     []string `json:"paths,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// PublishMetrics receives pipeline observations. Implementations must be
// safe for concurrent use.
type PublishMetrics interface {
	ObservePublish(outcome string, duration time.Duration)
	ObservePurge(urls int)
}

// Publisher pushes whitelist content to the remote repository and purges
// the CDN. It keeps a process-local snapshot of the last published
// plaintext; a restart causes at most one redundant (idempotent) commit.
type Publisher struct {
	content *ContentService
	store   ports.Store
	git     ports.GitHost
	purger  ports.CachePurger
	cfg     *config.Config
	metrics PublishMetrics
	logger  *zap.SugaredLogger

	mu          sync.Mutex
	snapshot    string
	hasSnapshot bool
	publishedAt time.Time
}

// NewPublisher creates a publisher. purger and metrics may be nil.
func NewPublisher(
	content *ContentService,
	store ports.Store,
	git ports.GitHost,
	purger ports.CachePurger,
	cfg *config.Config,
	metrics PublishMetrics,
	logger *zap.SugaredLogger,
) *Publisher {
	return &Publisher{
		content: content,
		store:   store,
		git:     git,
		purger:  purger,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// LastPublishedAt returns the time of the last successful publish, zero
// when nothing was published since the process started.
func (p *Publisher) LastPublishedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.publishedAt
}

// Publish runs the full pipeline: change detection, encoded generation,
// the atomic two-file commit, CDN purge and best-effort derived file
// generation. Remote API failures propagate as RemoteAPIError.
func (p *Publisher) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "publisher.publish",
		attribute.String("realm_id", req.RealmID),
		attribute.Bool("force", req.Force),
	)
	defer span.End()

	result, err := p.publish(ctx, req)
	if err != nil {
		tracing.RecordError(span, err)
		p.observe("error", time.Since(start))
		return nil, err
	}

	outcome := "unchanged"
	if result.Updated {
		outcome = "updated"
	}
	p.observe(outcome, time.Since(start))
	return result, nil
}

func (p *Publisher) publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	plaintext, err := p.content.GenerateContent(ctx, req.RealmID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	unchanged := p.hasSnapshot && p.snapshot == plaintext
	p.mu.Unlock()
	if unchanged && !req.Force {
		p.logger.Debugw("publish skipped", "reason", ReasonUnchanged)
		return &PublishResult{Updated: false, Reason: ReasonUnchanged}, nil
	}

	encoded, err := p.content.GenerateEncoded(ctx, req.RealmID)
	if err != nil {
		return nil, err
	}

	gh := p.cfg.GitHubFor(req.RealmID)
	if gh.Owner == "" || gh.Repo == "" || gh.Token == "" {
		return nil, apperrors.NewConfigurationError("publish repository owner, repo and token must be configured")
	}
	target := ports.RepoTarget{Owner: gh.Owner, Repo: gh.Repo, Token: gh.Token}

	message := req.Message
	if message == "" {
		message = "Update whitelist"
	}

	files := map[string]string{
		gh.RawPath:     plaintext,
		gh.EncodedPath: encoded,
	}
	commitSHA, err := p.commitFiles(ctx, target, gh, message, files)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.snapshot = plaintext
	p.hasSnapshot = true
	p.publishedAt = time.Now()
	p.mu.Unlock()

	p.logger.Infow("published whitelist",
		"commit", commitSHA,
		"realm_id", req.RealmID,
		"message", message,
	)

	p.purge(ctx, req)
	p.publishDerived(ctx, target, gh, req)

	paths := []string{gh.RawPath, gh.EncodedPath}
	return &PublishResult{Updated: true, CommitSHA: commitSHA, Paths: paths}, nil
}

// commitFiles updates the given paths atomically in one commit using the
// low-level object protocol: resolve the branch tip and its tree, create
// one blob per file, layer a new tree over the base, commit, and
// fast-forward the ref. A concurrently moved ref fails the last step.
func (p *Publisher) commitFiles(ctx context.Context, target ports.RepoTarget, gh config.GitHubConfig, message string, files map[string]string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "publisher.commit",
		attribute.Int("files", len(files)),
	)
	defer span.End()

	headSHA, err := p.git.GetBranchHead(ctx, target, gh.Branch)
	if err != nil {
		return "", err
	}
	baseTreeSHA, err := p.git.GetCommitTree(ctx, target, headSHA)
	if err != nil {
		return "", err
	}

	entries := make([]ports.TreeEntry, 0, len(files))
	for path, content := range files {
		blobSHA, err := p.git.CreateBlob(ctx, target, content)
		if err != nil {
			return "", err
		}
		entries = append(entries, ports.TreeEntry{
			Path: path,
			Mode: "100644",
			Type: "blob",
			SHA:  blobSHA,
		})
	}

	treeSHA, err := p.git.CreateTree(ctx, target, baseTreeSHA, entries)
	if err != nil {
		return "", err
	}

	var author *ports.CommitIdentity
	if gh.AuthorName != "" {
		author = &ports.CommitIdentity{Name: gh.AuthorName, Email: gh.AuthorEmail}
	}
	commitSHA, err := p.git.CreateCommit(ctx, target, message, treeSHA, []string{headSHA}, author)
	if err != nil {
		return "", err
	}

	if err := p.git.UpdateBranchRef(ctx, target, gh.Branch, commitSHA); err != nil {
		return "", err
	}
	return commitSHA, nil
}

// purge invalidates the CDN-cached whitelist endpoints for each target
// realm. Missing credentials skip the realm silently; purge errors are
// logged, never fatal.
func (p *Publisher) purge(ctx context.Context, req PublishRequest) {
	if p.purger == nil {
		return
	}

	realms, err := p.purgeTargets(ctx, req)
	if err != nil {
		p.logger.Warnw("resolving purge targets failed", "error", err)
		return
	}

	for _, realmID := range realms {
		cf := p.cfg.CloudflareFor(realmID)
		if cf.ZoneID == "" || cf.Token == "" || cf.SiteBaseURL == "" {
			continue
		}

		urls := purgeURLs(cf.SiteBaseURL, realmID)
		if err := p.purger.PurgeURLs(ctx, cf.ZoneID, cf.Token, urls); err != nil {
			p.logger.Warnw("CDN purge failed", "realm_id", realmID, "error", err)
			continue
		}
		if p.metrics != nil {
			p.metrics.ObservePurge(len(urls))
		}
		p.logger.Debugw("purged CDN cache", "realm_id", realmID, "urls", len(urls))
	}
}

// purgeTargets selects which realms to purge: the explicit realm wins;
// otherwise the affected realms narrowed to those with configured roles;
// otherwise every realm with at least one role.
func (p *Publisher) purgeTargets(ctx context.Context, req PublishRequest) ([]string, error) {
	if req.RealmID != "" {
		return []string{req.RealmID}, nil
	}

	configured, err := p.store.RealmsWithRoles(ctx)
	if err != nil {
		return nil, err
	}

	if len(req.AffectedRealmIDs) > 0 {
		known := make(map[string]struct{}, len(configured))
		for _, id := range configured {
			known[id] = struct{}{}
		}
		var targets []string
		for _, id := range req.AffectedRealmIDs {
			if _, ok := known[id]; ok {
				targets = append(targets, id)
			}
		}
		return targets, nil
	}
	return configured, nil
}

func purgeURLs(siteBaseURL, realmID string) []string {
	base := strings.TrimRight(siteBaseURL, "/")
	urls := []string{
		base + "/api/v1/whitelist/raw",
		base + "/api/v1/whitelist/encoded",
	}
	if realmID != "" {
		urls = append(urls,
			base+"/api/v1/whitelist/raw?realm="+realmID,
			base+"/api/v1/whitelist/encoded?realm="+realmID,
		)
	}
	return urls
}

// publishDerived writes one plaintext name list per held derived token in
// a second commit. Best effort: any failure is logged and the publish
// still counts as successful.
func (p *Publisher) publishDerived(ctx context.Context, target ports.RepoTarget, gh config.GitHubConfig, req PublishRequest) {
	views, err := p.content.WhitelistUsers(ctx, req.RealmID)
	if err != nil {
		p.logger.Warnw("derived generation failed", "error", err)
		return
	}

	affected := make(map[string]struct{}, len(req.AffectedUserIDs))
	for _, id := range req.AffectedUserIDs {
		affected[id] = struct{}{}
	}

	triggered := false
	for _, view := range views {
		if len(affected) > 0 {
			if _, ok := affected[view.UserID]; !ok {
				continue
			}
		}
		for _, token := range DerivedTokens {
			if domain.HasToken(view.Tokens, token) {
				triggered = true
				break
			}
		}
		if triggered {
			break
		}
	}
	if !triggered {
		return
	}

	files := make(map[string]string, len(DerivedTokens))
	for _, token := range DerivedTokens {
		var names []string
		for _, view := range views {
			if domain.HasToken(view.Tokens, token) {
				names = append(names, view.DisplayName)
			}
		}
		path := fmt.Sprintf("%s/%s.txt", strings.TrimRight(gh.DerivedDir, "/"), token)
		files[path] = strings.Join(names, "\n")
	}

	commitSHA, err := p.commitFiles(ctx, target, gh, "Update derived whitelists", files)
	if err != nil {
		p.logger.Warnw("derived commit failed", "error", err)
		return
	}
	p.logger.Infow("published derived whitelists", "commit", commitSHA, "files", len(files))
}

func (p *Publisher) observe(outcome string, duration time.Duration) {
	if p.metrics != nil {
		p.metrics.ObservePublish(outcome, duration)
	}
}
