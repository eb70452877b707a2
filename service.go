// Package searchbridge wires the store, gateway client, normalizer and
// orchestrator into one service and exposes them over REST and MCP. The
// hosting platform owns the content and the triggers; this package owns
// everything between a content-changed event and the remote index.
package searchbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/thinkpixel/searchbridge/content"
	"github.com/thinkpixel/searchbridge/htmlmd"
	"github.com/thinkpixel/searchbridge/remote"
	"github.com/thinkpixel/searchbridge/settings"
	"github.com/thinkpixel/searchbridge/store"
	"github.com/thinkpixel/searchbridge/syncer"
)

// Version reported by the debug endpoint.
const Version = "1.2.0"

// Gateway is the slice of the remote client the service needs. Satisfied
// by *remote.Client.
type Gateway interface {
	syncer.Gateway
	RegisterSite(ctx context.Context, stats *content.Stats) (*remote.Registration, error)
	Ping(ctx context.Context) (json.RawMessage, error)
	RefreshAPIKey(ctx context.Context) string
	LastError() *remote.ClientError
	LastLatency() time.Duration
	Cleanup()
}

// Service is the top-level façade the hosting platform talks to.
type Service struct {
	store       *store.Store
	settings    *settings.Store
	gateway     Gateway
	sync        *syncer.Orchestrator
	repo        content.Repository
	norm        *htmlmd.Normalizer
	logger      *slog.Logger
	siteURL     string
	siteSecret  []byte
	batchItems  int
	minQueryLen int
}

// ServiceConfig collects the service dependencies.
type ServiceConfig struct {
	Store      *store.Store
	Settings   *settings.Store
	Gateway    Gateway
	Repo       content.Repository
	Normalizer *htmlmd.Normalizer

	// SiteURL of the hosting site, echoed on the validation endpoint.
	SiteURL string

	// SiteSecret signs key-exchange nonces.
	SiteSecret []byte

	// BatchItems caps how many unprocessed ids a scheduled run selects.
	// Default: 50.
	BatchItems int

	// MinQueryLength below which searches are not served. Default: 2.
	MinQueryLength int

	Logger *slog.Logger
}

// NewService assembles the service. The orchestrator is built here so the
// caller only wires leaf dependencies.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil || cfg.Settings == nil || cfg.Gateway == nil || cfg.Repo == nil {
		return nil, fmt.Errorf("service: store, settings, gateway and repo are required")
	}
	if cfg.SiteURL == "" {
		return nil, fmt.Errorf("service: site URL is required")
	}
	if len(cfg.SiteSecret) == 0 {
		return nil, fmt.Errorf("service: site secret is required")
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = htmlmd.New()
	}
	if cfg.BatchItems <= 0 {
		cfg.BatchItems = 50
	}
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = syncer.DefaultMinQueryLength
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	orch := syncer.New(cfg.Store, cfg.Gateway, cfg.Repo, cfg.Normalizer,
		syncer.WithLogger(cfg.Logger),
		syncer.WithMinQueryLength(cfg.MinQueryLength))

	return &Service{
		store:       cfg.Store,
		settings:    cfg.Settings,
		gateway:     cfg.Gateway,
		sync:        orch,
		repo:        cfg.Repo,
		norm:        cfg.Normalizer,
		logger:      cfg.Logger,
		siteURL:     cfg.SiteURL,
		siteSecret:  cfg.SiteSecret,
		batchItems:  cfg.BatchItems,
		minQueryLen: cfg.MinQueryLength,
	}, nil
}

// Activate bootstraps a fresh installation: backfill tracking for every
// existing content item, then register the site with the gateway. Safe to
// call again after an upgrade; both steps are idempotent.
func (s *Service) Activate(ctx context.Context) error {
	if err := s.store.SyncAll(ctx, s.repo); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	if err := s.RegisterSite(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	s.logger.Info("service activated", "site", s.siteURL)
	return nil
}

// Deactivate tears down tracking state and ephemeral caches. The encrypted
// API key survives so a reinstall does not need a new key exchange.
func (s *Service) Deactivate(ctx context.Context) error {
	if err := s.store.Drop(ctx); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	if err := s.settings.Cleanup(ctx); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	s.gateway.Cleanup()
	s.logger.Info("service deactivated", "site", s.siteURL)
	return nil
}

// RegisterSite announces the site to the gateway. A site that already holds
// an API key is registered; nothing to do. Otherwise the corpus statistics
// are sent and the returned validation token is stored for the later key
// exchange.
func (s *Service) RegisterSite(ctx context.Context) error {
	if s.settings.HasAPIKey(ctx) {
		return nil
	}
	stats, err := content.ComputeStats(ctx, s.repo)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	reg, err := s.gateway.RegisterSite(ctx, stats)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if err := s.settings.StoreValidationToken(ctx, reg.ValidationToken, reg.ValidationTokenExpiresAt); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	s.logger.Info("site registered",
		"site", s.siteURL, "token_expires", reg.ValidationTokenExpiresAt)
	return nil
}

// ContentSaved tracks a created or updated content item for (re)processing.
func (s *Service) ContentSaved(ctx context.Context, id int64, kind string) error {
	return s.store.Track(ctx, id, kind)
}

// ContentDeleted drops tracking for a removed item and asks the gateway to
// forget it. Index removal is best-effort; the local untrack is what must
// not fail silently.
func (s *Service) ContentDeleted(ctx context.Context, id int64) error {
	if err := s.store.Untrack(ctx, id); err != nil {
		return err
	}
	s.gateway.RemoveFromIndex(ctx, []int64{id})
	return nil
}

// RunScheduled is the body of the periodic sync job. The trigger (cron,
// timer, manual call) lives with the host; each run drains at most one
// batch so a slow gateway cannot hold the scheduler hostage.
func (s *Service) RunScheduled(ctx context.Context) error {
	processed, err := s.sync.ProcessBatch(ctx, s.batchItems)
	if err != nil {
		return fmt.Errorf("scheduled run: %w", err)
	}
	remaining, err := s.store.CountUnprocessed(ctx)
	if err != nil {
		return fmt.Errorf("scheduled run: %w", err)
	}
	s.logger.Info("scheduled run finished",
		"processed", len(processed), "remaining", remaining)
	return nil
}

// Search serves a query through the cache-first flow.
func (s *Service) Search(ctx context.Context, query string) (json.RawMessage, error) {
	return s.sync.Search(ctx, query)
}

// UpdateSkip flips the operator skip flag on the given ids. Newly skipped
// items are also removed from the remote index.
func (s *Service) UpdateSkip(ctx context.Context, ids []int64, skip bool) error {
	if err := s.store.UpdateSkipStatus(ctx, ids, skip); err != nil {
		return err
	}
	if skip {
		s.sync.RemoveSkipped(ctx, ids)
	}
	return nil
}

// ExchangeKey completes the pre-activation key exchange: the gateway calls
// back with the API key and the nonce it was shown on the validation
// endpoint. A stale or forged nonce is rejected.
func (s *Service) ExchangeKey(ctx context.Context, apiKey, nonce string) error {
	if apiKey == "" {
		return fmt.Errorf("exchange: %w: empty api key", remote.ErrValidation)
	}
	if !verifyNonce(s.siteSecret, nonce, time.Now()) {
		return fmt.Errorf("exchange: %w: bad nonce", remote.ErrAuth)
	}
	if err := s.settings.StoreAPIKey(ctx, apiKey); err != nil {
		return fmt.Errorf("exchange: %w", err)
	}
	// Any token minted under the old key is now worthless.
	s.gateway.Cleanup()
	s.logger.Info("api key exchanged", "site", s.siteURL)
	return nil
}

// RefreshKey rotates the API key: the gateway mints a replacement under
// the current credentials and the new key replaces the stored one.
func (s *Service) RefreshKey(ctx context.Context) error {
	key := s.gateway.RefreshAPIKey(ctx)
	if key == "" {
		return fmt.Errorf("refresh key: %w: gateway refused", remote.ErrAuth)
	}
	if err := s.settings.StoreAPIKey(ctx, key); err != nil {
		return fmt.Errorf("refresh key: %w", err)
	}
	s.logger.Info("api key rotated", "site", s.siteURL)
	return nil
}

// ValidationInfo is what the gateway reads from the validation endpoint
// before pushing the API key.
type ValidationInfo struct {
	Domain          string `json:"domain"`
	Path            string `json:"path"`
	ValidationToken string `json:"validation_token"`
	Nonce           string `json:"nonce"`
}

// Validation returns the site coordinates, the stored validation token and
// a fresh exchange nonce.
func (s *Service) Validation(ctx context.Context) (*ValidationInfo, error) {
	token, err := s.settings.ValidationToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}
	domain, path := splitSiteURL(s.siteURL)
	return &ValidationInfo{
		Domain:          domain,
		Path:            path,
		ValidationToken: token,
		Nonce:           issueNonce(s.siteSecret, time.Now()),
	}, nil
}

func splitSiteURL(raw string) (domain, path string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, "/"
	}
	path = u.Path
	if path == "" {
		path = "/"
	}
	return u.Host, path
}

// DebugReport walks the whole pipeline once and records what worked. Each
// step runs even when an earlier one failed, so one report shows every
// broken link at once.
type DebugReport struct {
	Version       string   `json:"version"`
	APIKeyPresent bool     `json:"api_key_present"`
	PingOK        bool     `json:"ping_ok"`
	SampleID      int64    `json:"sample_id,omitempty"`
	SubmitOK      bool     `json:"submit_ok"`
	SearchOK      bool     `json:"search_ok"`
	LatencyMillis int64    `json:"latency_ms"`
	TrackedTotal  int      `json:"tracked_total"`
	Unprocessed   int      `json:"unprocessed"`
	Failures      []string `json:"failures,omitempty"`
	LastClientErr string   `json:"last_client_error,omitempty"`
}

// OK reports whether every diagnostic step passed.
func (r *DebugReport) OK() bool { return len(r.Failures) == 0 }

// Debug produces a step-by-step diagnostic of the sync pipeline: key
// present, gateway reachable, a sample item submitted raw, and a search
// round-trip.
func (s *Service) Debug(ctx context.Context) *DebugReport {
	r := &DebugReport{Version: Version}
	fail := func(format string, args ...any) {
		r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
	}

	r.APIKeyPresent = s.settings.HasAPIKey(ctx)
	if !r.APIKeyPresent {
		fail("no api key stored")
	}

	if _, err := s.gateway.Ping(ctx); err != nil {
		fail("ping: %v", err)
	} else {
		r.PingOK = true
	}

	if n, err := s.store.CountTotal(ctx); err == nil {
		r.TrackedTotal = n
	} else {
		fail("count total: %v", err)
	}
	if n, err := s.store.CountUnprocessed(ctx); err == nil {
		r.Unprocessed = n
	} else {
		fail("count unprocessed: %v", err)
	}

	id, ok, err := s.store.SampleUnskipped(ctx)
	switch {
	case err != nil:
		fail("sample item: %v", err)
	case !ok:
		fail("no unskipped item to sample")
	default:
		r.SampleID = id
		item, err := s.repo.Get(ctx, id)
		if err != nil || item == nil {
			fail("sample content %d unavailable", id)
			break
		}
		text := s.norm.Convert(item.Title + "\n" + item.Body)
		stored := s.gateway.SubmitBatch(ctx, []remote.BatchItem{{
			ID:   id,
			Text: text,
			Extra: map[string]string{
				"title": item.Title,
				"type":  item.Kind,
			},
		}})
		if len(stored) > 0 {
			r.SubmitOK = true
			probe := item.Title
			if probe == "" {
				probe = firstWords(text, 3)
			}
			if res := s.gateway.Search(ctx, probe); res != nil {
				r.SearchOK = true
			} else {
				fail("search returned nothing for %q", probe)
			}
		} else {
			fail("submit of sample %d not confirmed", id)
		}
	}

	r.LatencyMillis = s.gateway.LastLatency().Milliseconds()
	if cerr := s.gateway.LastError(); cerr != nil {
		r.LastClientErr = cerr.Error()
	}
	return r
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
