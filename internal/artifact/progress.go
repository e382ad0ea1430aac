package artifact

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/blikvm/kvm-update/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	barLength           = 40
	progressLogInterval = 5 * time.Second
)

// ProgressBar renders download progress on a terminal line. It redraws only
// when the integer percentage changes, and mirrors progress into the log at
// most once per progressLogInterval.
type ProgressBar struct {
	out      io.Writer
	log      *logger.Logger
	name     string
	last     int
	drawn    bool
	sometime rate.Sometimes
}

// NewProgressBar creates a progress bar for the named artifact.
func NewProgressBar(out io.Writer, log *logger.Logger, name string) *ProgressBar {
	return &ProgressBar{
		out:      out,
		log:      log,
		name:     name,
		sometime: rate.Sometimes{Interval: progressLogInterval},
	}
}

// Percent returns written/total as a percentage; ok is false when the total
// is unknown.
func Percent(written, total int64) (pct float64, ok bool) {
	if total <= 0 {
		return 0, false
	}
	return float64(written) / float64(total) * 100, true
}

// Update is a ProgressFunc.
func (p *ProgressBar) Update(written, total int64) {
	pct, ok := Percent(written, total)
	if !ok {
		return
	}
	now := int(pct)
	if now == p.last {
		return
	}
	p.last = now

	if p.out != nil {
		filled := barLength * min(now, 100) / 100
		bar := strings.Repeat("█", filled) + strings.Repeat("-", barLength-filled)
		fmt.Fprintf(p.out, "\rDownload progress: |%s| %.2f%%", bar, pct)
		p.drawn = true
	}

	if p.log != nil {
		p.sometime.Do(func() {
			p.log.WithFields(logger.Fields{
				"artifact": p.name,
				"written":  written,
				"total":    total,
			}).Infof("Download progress %d%%", now)
		})
	}
}

// Finish terminates the progress line.
func (p *ProgressBar) Finish() {
	if p.drawn && p.out != nil {
		fmt.Fprintln(p.out)
	}
}
