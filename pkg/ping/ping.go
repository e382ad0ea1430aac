package ping

import (
	"bufio"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/blikvm/kvm-update/internal/cmdrunner"
	"github.com/blikvm/kvm-update/pkg/logger"
)

const (
	DefaultPingCount   = 3
	DefaultPingTimeout = 10 * time.Second
)

// Client measures round-trip latency with the system ping binary.
type Client struct {
	logger *logger.Logger
	runner cmdrunner.CommandRunner
}

// NewClient creates a ping client running commands through runner.
func NewClient(logger *logger.Logger, runner cmdrunner.CommandRunner) *Client {
	return &Client{
		logger: logger,
		runner: runner,
	}
}

// AverageRTT pings host count times and returns the average round-trip time
// in milliseconds. ok is false when the host is unreachable, the command
// timed out or its output has no parsable summary line.
func (p *Client) AverageRTT(ctx context.Context, host string, count int, timeout time.Duration) (avg float64, ok bool) {
	if count < 1 {
		count = DefaultPingCount
	}
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// IPv4 only: several mirrors publish AAAA records that are unreachable
	// from typical appliance networks. -n skips reverse lookups.
	out, err := p.runner.RunWithOutputNoErrLog(ctx, "ping", "-n", "-4", "-c", strconv.Itoa(count), host)
	if err != nil && len(out) == 0 {
		p.logger.WithFields(logger.Fields{
			"host":  host,
			"error": err.Error(),
		}).Debug("Ping failed")
		return 0, false
	}

	avg, ok = ParseAverageRTT(string(out))
	p.logger.WithFields(logger.Fields{
		"host":   host,
		"count":  count,
		"avg_ms": avg,
		"ok":     ok,
	}).Debug("Ping finished")
	return avg, ok
}

// ParseAverageRTT extracts the average from a ping summary line such as
//
//	rtt min/avg/max/mdev = 10.317/10.420/10.530/0.086 ms
//	round-trip min/avg/max/stddev = 10.317/10.420/10.530/0.086 ms
func ParseAverageRTT(output string) (float64, bool) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "min/avg") {
			continue
		}
		_, right, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		fields := strings.Fields(right)
		if len(fields) == 0 {
			return 0, false
		}
		parts := strings.Split(fields[0], "/")
		if len(parts) < 2 {
			return 0, false
		}
		avg, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, false
		}
		return avg, true
	}
	return 0, false
}
