package mirror

import (
	"fmt"
	"strings"

	"github.com/blikvm/kvm-update/internal/config"
)

// Mirror identifies one of the two release hosts.
type Mirror string

const (
	// GitHub is the primary mirror.
	GitHub Mirror = "github"
	// Gitee is the secondary mirror and the default when nothing answers a probe.
	Gitee Mirror = "gitee"
)

// All lists the mirrors in preference order. Ties in latency go to the first.
var All = []Mirror{GitHub, Gitee}

// Default is chosen when no mirror could be probed. Gitee is the more
// reachable of the two from the networks most appliances sit on.
const Default = Gitee

// ParseMirror validates a mirror name given on the command line.
func ParseMirror(s string) (Mirror, error) {
	switch m := Mirror(strings.ToLower(strings.TrimSpace(s))); m {
	case GitHub, Gitee:
		return m, nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("unknown source %q (valid: github, gitee)", s)
	}
}

// Other returns the alternate mirror.
func (m Mirror) Other() Mirror {
	if m == GitHub {
		return Gitee
	}
	return GitHub
}

// AcceptsShortTag reports whether the mirror's release API may report the
// tag under "tag" instead of "tag_name".
func (m Mirror) AcceptsShortTag() bool {
	return m == Gitee
}

func (m Mirror) String() string {
	return string(m)
}

// Endpoint holds the addresses of a mirror.
type Endpoint struct {
	Host         string
	APIBase      string
	DownloadBase string
}

// ReleasesURL is the base of the release API for owner/repo.
func (e Endpoint) ReleasesURL(owner, repo string) string {
	return fmt.Sprintf("%s/repos/%s/%s/releases", strings.TrimRight(e.APIBase, "/"), owner, repo)
}

// AssetURL is the direct download address of a release asset.
func (e Endpoint) AssetURL(owner, repo, tag, fileName string) string {
	return fmt.Sprintf("%s/%s/%s/releases/download/%s/%s",
		strings.TrimRight(e.DownloadBase, "/"), owner, repo, tag, fileName)
}

// Endpoints maps every mirror to its addresses.
type Endpoints map[Mirror]Endpoint

// EndpointsFromConfig builds the endpoint table from configuration.
func EndpointsFromConfig(cfg *config.Config) Endpoints {
	endpoints := make(Endpoints, len(All))
	for _, m := range All {
		mc := cfg.Mirrors[string(m)]
		endpoints[m] = Endpoint{
			Host:         mc.Host,
			APIBase:      mc.APIBase,
			DownloadBase: mc.DownloadBase,
		}
	}
	return endpoints
}

// Measurements holds average ping latency in milliseconds per mirror.
// A missing key means the probe failed.
type Measurements map[Mirror]float64

func (ms Measurements) String() string {
	parts := make([]string, 0, len(All))
	for _, m := range All {
		if v, ok := ms[m]; ok {
			parts = append(parts, fmt.Sprintf("%s=%.3fms", m, v))
		} else {
			parts = append(parts, fmt.Sprintf("%s=unavailable", m))
		}
	}
	return strings.Join(parts, ", ")
}
