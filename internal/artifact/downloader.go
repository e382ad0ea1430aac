package artifact

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/blikvm/kvm-update/internal/mirror"
	"github.com/blikvm/kvm-update/pkg/logger"
)

// Fetcher downloads release assets straight from a mirror's download host.
type Fetcher struct {
	httpClient *http.Client
	endpoints  mirror.Endpoints
	breakers   *mirror.Breakers
	userAgent  string
	logger     *logger.Logger
	console    io.Writer
	freeSpace  func(dir string) (uint64, bool)
}

// NewFetcher creates a fetcher. timeout bounds connecting and waiting for
// response headers; streaming the body is not time limited. console, when
// non-nil, receives the progress bar.
func NewFetcher(endpoints mirror.Endpoints, breakers *mirror.Breakers, timeout time.Duration, userAgent string, console io.Writer, log *logger.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		endpoints: endpoints,
		breakers:  breakers,
		userAgent: userAgent,
		logger:    log,
		console:   console,
		freeSpace: freeSpace,
	}
}

// Fetch downloads task's asset into task.DestDir. Every failure, including
// transport and filesystem errors, is returned as an error; a nil error
// means the file is complete.
func (f *Fetcher) Fetch(ctx context.Context, task Task) error {
	if task.FileName == "" {
		return ErrNoFileName
	}

	url := f.endpoints[task.Mirror].AssetURL(task.Owner, task.Repo, task.Tag, task.FileName)
	log := f.logger.WithFields(logger.Fields{
		"mirror": task.Mirror,
		"url":    url,
		"dest":   task.Path(),
	})
	log.Info("Starting artifact download")

	var written int64
	err := f.breakers.Execute(task.Mirror, func() error {
		var err error
		written, err = f.download(ctx, url, task)
		return err
	})
	if err != nil {
		log.WithError(err).Errorf("Error downloading file from %s", task.Mirror)
		return err
	}

	log.WithField("bytes", written).Infof("%s downloaded to %s successfully", task.FileName, task.Path())
	return nil
}

func (f *Fetcher) download(ctx context.Context, url string, task Task) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w: %w", err, mirror.ErrPermanent)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("download failed with status %d", resp.StatusCode)
		if resp.StatusCode < http.StatusInternalServerError {
			err = fmt.Errorf("%w: %w", err, mirror.ErrPermanent)
		}
		return 0, err
	}

	if err := os.MkdirAll(task.DestDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create download directory: %w: %w", err, mirror.ErrPermanent)
	}

	total := resp.ContentLength
	if total > 0 {
		if avail, ok := f.freeSpace(task.DestDir); ok && uint64(total) > avail {
			return 0, fmt.Errorf("%w: need %d bytes, %d available: %w", ErrInsufficientSpace, total, avail, mirror.ErrPermanent)
		}
	} else {
		total = 0
	}

	file, err := os.Create(task.Path())
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w: %w", err, mirror.ErrPermanent)
	}
	defer file.Close()

	bar := NewProgressBar(f.console, f.logger, task.FileName)
	written, err := copyWithContext(ctx, file, resp.Body, bar.Update, total)
	bar.Finish()
	if err != nil {
		return written, fmt.Errorf("failed to save file: %w", err)
	}

	if err := file.Sync(); err != nil {
		return written, fmt.Errorf("failed to sync file: %w: %w", err, mirror.ErrPermanent)
	}

	if total != 0 && written != total {
		return written, fmt.Errorf("%w: downloaded %d out of %d bytes", ErrSizeMismatch, written, total)
	}

	return written, nil
}
