package updater

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blikvm/kvm-update/internal/artifact"
	"github.com/blikvm/kvm-update/internal/board"
	"github.com/blikvm/kvm-update/internal/mirror"
	"github.com/blikvm/kvm-update/internal/release"
	"github.com/blikvm/kvm-update/internal/state"
	"github.com/blikvm/kvm-update/pkg/logger"
	"github.com/stretchr/testify/require"
)

type unreachable struct{}

func (unreachable) AverageRTT(context.Context, string, int, time.Duration) (float64, bool) {
	return 0, false
}

// reachableOnly answers only for one host.
type reachableOnly string

func (r reachableOnly) AverageRTT(_ context.Context, host string, _ int, _ time.Duration) (float64, bool) {
	if host != string(r) {
		return 0, false
	}
	return 12.5, true
}

// fakeMirrors serves the release API and asset downloads of both mirrors
// under /github and /gitee prefixes.
type fakeMirrors struct {
	latest    map[mirror.Mirror]string
	asset     []byte
	truncate  bool
	apiHits   atomic.Int32
	assetHits atomic.Int32

	// assetStatus overrides the download response code per mirror.
	assetStatus map[mirror.Mirror]int

	mu        sync.Mutex
	downloads map[mirror.Mirror]int
}

func (f *fakeMirrors) downloadHits(m mirror.Mirror) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[m]
}

func (f *fakeMirrors) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name, rest, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	m := mirror.Mirror(name)

	switch {
	case strings.HasPrefix(rest, "api/repos/"):
		f.apiHits.Add(1)
		tag, ok := f.latest[m]
		if !ok {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"tag_name":"`+tag+`"}`)
	case strings.Contains(rest, "/releases/download/"):
		f.assetHits.Add(1)
		f.mu.Lock()
		if f.downloads == nil {
			f.downloads = map[mirror.Mirror]int{}
		}
		f.downloads[m]++
		f.mu.Unlock()
		if code, ok := f.assetStatus[m]; ok {
			http.Error(w, "unavailable", code)
			return
		}
		if f.truncate {
			w.Header().Set("Content-Length", "4096")
			_, _ = w.Write(f.asset)
			return
		}
		_, _ = w.Write(f.asset)
	default:
		http.NotFound(w, r)
	}
}

func newPipeline(t *testing.T, srv *httptest.Server, prober mirror.Prober, versionPath, downloadDir string, inst Installer) *Updater {
	t.Helper()
	log := logger.NewLogger("pipeline_test")

	endpoints := mirror.Endpoints{}
	for _, m := range mirror.All {
		endpoints[m] = mirror.Endpoint{
			Host:         string(m) + ".invalid",
			APIBase:      srv.URL + "/" + string(m) + "/api",
			DownloadBase: srv.URL + "/" + string(m),
		}
	}
	api := mirror.BreakerSettings{Scope: "api", MaxFailures: 2, OpenTimeout: time.Minute}
	download := mirror.BreakerSettings{Scope: "download", MaxFailures: 2, OpenTimeout: time.Minute}

	return New(Params{
		Owner:       "blikvm",
		Repo:        "blikvm",
		DownloadDir: downloadDir,
	}, Deps{
		Selector:  mirror.NewSelector(prober, endpoints, 3, time.Second, log),
		Resolver:  release.NewResolver(endpoints, mirror.NewBreakers(api, log), 2*time.Second, "blikvm-updater/1.0", log),
		Fetcher:   artifact.NewFetcher(endpoints, mirror.NewBreakers(download, log), 2*time.Second, "blikvm-updater/1.0", io.Discard, log),
		Installer: inst,
		Status:    state.NewStatusFile(filepath.Join(downloadDir, "update_status.json")),
		Versions:  state.NewVersionFile(versionPath, "v1.0.0"),
		Detector:  fakeDetector{board: board.V2PCIe},
	}, log)
}

func TestPipelineDownloadsFromDefaultMirror(t *testing.T) {
	mirrors := &fakeMirrors{
		latest: map[mirror.Mirror]string{mirror.Gitee: "v1.5.0"},
		asset:  []byte("debian package"),
	}
	srv := httptest.NewServer(mirrors)
	t.Cleanup(srv.Close)

	root := t.TempDir()
	downloadDir := filepath.Join(root, "kvm_update")
	inst := &fakeInstaller{}
	u := newPipeline(t, srv, unreachable{}, filepath.Join(root, "package.json"), downloadDir, inst)

	result, err := u.Run(context.Background(), Options{SkipDeps: true})
	require.NoError(t, err)
	require.Equal(t, Updated, result.Outcome)
	require.Equal(t, mirror.Gitee, result.Mirror)

	pkg := filepath.Join(downloadDir, "blikvm-v1-v2-v3.deb")
	require.Equal(t, []string{pkg}, inst.installed)
	data, err := os.ReadFile(pkg)
	require.NoError(t, err)
	require.Equal(t, "debian package", string(data))
}

func TestPipelineAllMetadataFails(t *testing.T) {
	mirrors := &fakeMirrors{latest: map[mirror.Mirror]string{}}
	srv := httptest.NewServer(mirrors)
	t.Cleanup(srv.Close)

	root := t.TempDir()
	downloadDir := filepath.Join(root, "kvm_update")
	inst := &fakeInstaller{}
	u := newPipeline(t, srv, unreachable{}, filepath.Join(root, "package.json"), downloadDir, inst)

	result, err := u.Run(context.Background(), Options{SkipDeps: true})
	require.NoError(t, err)
	require.Equal(t, Failed, result.Outcome)
	require.ErrorIs(t, result.Err, ErrTagNotFound)
	// latest and list on both mirrors
	require.EqualValues(t, 4, mirrors.apiHits.Load())
	require.Zero(t, mirrors.assetHits.Load())
	require.Empty(t, inst.installed)

	status, err := state.NewStatusFile(filepath.Join(downloadDir, "update_status.json")).Read()
	require.NoError(t, err)
	require.Equal(t, state.Failure, status)
}

func TestPipelineTruncatedDownloadIsNotInstalled(t *testing.T) {
	mirrors := &fakeMirrors{
		asset:    []byte("short"),
		truncate: true,
	}
	srv := httptest.NewServer(mirrors)
	t.Cleanup(srv.Close)

	root := t.TempDir()
	downloadDir := filepath.Join(root, "kvm_update")
	inst := &fakeInstaller{}
	u := newPipeline(t, srv, unreachable{}, filepath.Join(root, "package.json"), downloadDir, inst)

	result, err := u.Run(context.Background(), Options{Version: "v1.4.2", SkipDeps: true})
	require.NoError(t, err)
	require.Equal(t, Failed, result.Outcome)
	require.ErrorIs(t, result.Err, ErrDownloadFailed)
	require.EqualValues(t, 2, mirrors.assetHits.Load())
	require.Empty(t, inst.installed)
}

func TestPipelineDownloadFallsBackToMirrorWithFailedMetadata(t *testing.T) {
	mirrors := &fakeMirrors{
		latest:      map[mirror.Mirror]string{mirror.Gitee: "v1.5.0"},
		asset:       []byte("debian package"),
		assetStatus: map[mirror.Mirror]int{mirror.Gitee: http.StatusServiceUnavailable},
	}
	srv := httptest.NewServer(mirrors)
	t.Cleanup(srv.Close)

	root := t.TempDir()
	downloadDir := filepath.Join(root, "kvm_update")
	inst := &fakeInstaller{}
	u := newPipeline(t, srv, reachableOnly("github.invalid"), filepath.Join(root, "package.json"), downloadDir, inst)

	result, err := u.Run(context.Background(), Options{SkipDeps: true})
	require.NoError(t, err)
	require.NoError(t, result.Err)
	require.Equal(t, Updated, result.Outcome)
	require.Equal(t, "v1.5.0", result.Tag)
	require.Equal(t, mirror.GitHub, result.Mirror)

	// github metadata failed twice, which must not block its download
	require.EqualValues(t, 3, mirrors.apiHits.Load())
	require.Equal(t, 1, mirrors.downloadHits(mirror.Gitee))
	require.Equal(t, 1, mirrors.downloadHits(mirror.GitHub))
	require.Equal(t, []string{filepath.Join(downloadDir, "blikvm-v1-v2-v3.deb")}, inst.installed)
}
