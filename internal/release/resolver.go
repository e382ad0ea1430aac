package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/blikvm/kvm-update/internal/mirror"
	"github.com/blikvm/kvm-update/pkg/logger"
)

var errBodyTooLarge = errors.New("response body too large")

// Resolver finds the most recent release tag on a mirror.
type Resolver struct {
	httpClient *http.Client
	endpoints  mirror.Endpoints
	breakers   *mirror.Breakers
	userAgent  string
	logger     *logger.Logger
}

// NewResolver creates a resolver whose requests are bounded by timeout and
// guarded by breakers.
func NewResolver(endpoints mirror.Endpoints, breakers *mirror.Breakers, timeout time.Duration, userAgent string, log *logger.Logger) *Resolver {
	return &Resolver{
		httpClient: &http.Client{Timeout: timeout},
		endpoints:  endpoints,
		breakers:   breakers,
		userAgent:  userAgent,
		logger:     log,
	}
}

// LatestTag returns the newest release tag of owner/repo on m, or "" when
// it cannot be determined. The "latest" endpoint is tried first; when it
// fails or carries no tag, the first entry of the release list is used,
// since not every mirror populates "latest" right after publishing.
func (r *Resolver) LatestTag(ctx context.Context, m mirror.Mirror, owner, repo string) string {
	base := r.endpoints[m].ReleasesURL(owner, repo)
	log := r.logger.WithFields(logger.Fields{"mirror": m, "repo": owner + "/" + repo})

	var latest Release
	err := r.getJSON(ctx, m, base+"/latest", &latest)
	if err == nil {
		if tag := latest.TagFor(m.AcceptsShortTag()); tag != "" {
			log.WithField("tag", tag).Debug("Resolved tag from latest release")
			return tag
		}
		err = errors.New("latest release has no tag")
	}
	log.WithError(err).Debug("Latest release lookup failed, trying release list")

	var list []Release
	if err := r.getJSON(ctx, m, base+"?per_page=1", &list); err != nil {
		log.WithError(err).Warn("Release list lookup failed")
		return ""
	}
	if len(list) == 0 {
		log.Warn("Release list is empty")
		return ""
	}
	tag := list[0].TagFor(m.AcceptsShortTag())
	if tag == "" {
		log.Warn("First listed release has no tag")
	}
	return tag
}

// getJSON fetches url through the mirror's breaker and decodes the body into v.
func (r *Resolver) getJSON(ctx context.Context, m mirror.Mirror, url string, v any) error {
	return r.breakers.Execute(m, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w: %w", err, mirror.ErrPermanent)
		}
		req.Header.Set("User-Agent", r.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("release API returned status %d", resp.StatusCode)
			if resp.StatusCode < http.StatusInternalServerError {
				err = fmt.Errorf("%w: %w", err, mirror.ErrPermanent)
			}
			return err
		}

		data, err := readAllWithLimit(resp.Body, maxMetadataSize)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to decode response: %w: %w", err, mirror.ErrPermanent)
		}
		return nil
	})
}

// readAllWithLimit reads from rd and fails if content exceeds limit bytes.
func readAllWithLimit(rd io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}
