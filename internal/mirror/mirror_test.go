package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/blikvm/kvm-update/internal/config"
	"github.com/blikvm/kvm-update/pkg/logger"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.Config{Level: "error", Format: "text", Output: io.Discard}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeProber struct {
	results map[string]float64
	calls   []string
}

func (p *fakeProber) AverageRTT(_ context.Context, host string, _ int, _ time.Duration) (float64, bool) {
	p.calls = append(p.calls, host)
	v, ok := p.results[host]
	return v, ok
}

func testEndpoints() Endpoints {
	return EndpointsFromConfig(config.DefaultConfig())
}

func newTestSelector(p Prober) *Selector {
	return NewSelector(p, testEndpoints(), 3, time.Second, logger.NewLogger("mirror"))
}

func TestSelectLowerLatencyWins(t *testing.T) {
	p := &fakeProber{results: map[string]float64{"github.com": 180.5, "gitee.com": 35.1}}
	sel := newTestSelector(p).Select(context.Background(), "")

	require.Equal(t, Gitee, sel.Chosen)
	require.Equal(t, GitHub, sel.Fallback)
	require.False(t, sel.Forced)
	require.Equal(t, []string{"github.com", "gitee.com"}, p.calls)
}

func TestSelectOnlyAvailableMirror(t *testing.T) {
	for _, tt := range []struct {
		results map[string]float64
		want    Mirror
	}{
		{results: map[string]float64{"github.com": 900}, want: GitHub},
		{results: map[string]float64{"gitee.com": 900}, want: Gitee},
	} {
		sel := newTestSelector(&fakeProber{results: tt.results}).Select(context.Background(), "")
		require.Equal(t, tt.want, sel.Chosen)
		require.Equal(t, tt.want.Other(), sel.Fallback)
	}
}

func TestSelectBothUnavailableDefaultsToGitee(t *testing.T) {
	sel := newTestSelector(&fakeProber{}).Select(context.Background(), "")
	require.Equal(t, Gitee, sel.Chosen)
	require.Equal(t, GitHub, sel.Fallback)
	require.Empty(t, sel.Measurements)
}

func TestSelectForcedNeverProbes(t *testing.T) {
	for _, forced := range All {
		p := &fakeProber{results: map[string]float64{"github.com": 1, "gitee.com": 1}}
		sel := newTestSelector(p).Select(context.Background(), forced)

		require.Empty(t, p.calls)
		require.True(t, sel.Forced)
		require.Equal(t, forced, sel.Chosen)
		require.Equal(t, forced.Other(), sel.Fallback)
	}
}

func TestChooseTieGoesToPrimary(t *testing.T) {
	require.Equal(t, GitHub, Choose(Measurements{GitHub: 20, Gitee: 20}))
}

func TestSelectionSwap(t *testing.T) {
	sel := Selection{Chosen: GitHub, Fallback: Gitee}
	sel.Swap()
	require.Equal(t, Gitee, sel.Chosen)
	require.Equal(t, GitHub, sel.Fallback)
}

func TestParseMirror(t *testing.T) {
	m, err := ParseMirror("GitHub")
	require.NoError(t, err)
	require.Equal(t, GitHub, m)

	m, err = ParseMirror("")
	require.NoError(t, err)
	require.Equal(t, Mirror(""), m)

	_, err = ParseMirror("gitlab")
	require.Error(t, err)
}

func TestEndpointURLs(t *testing.T) {
	e := testEndpoints()
	require.Equal(t, "https://api.github.com/repos/blikvm/blikvm/releases", e[GitHub].ReleasesURL("blikvm", "blikvm"))
	require.Equal(t, "https://gitee.com/api/v5/repos/blikvm/blikvm/releases", e[Gitee].ReleasesURL("blikvm", "blikvm"))
	require.Equal(t,
		"https://github.com/blikvm/blikvm/releases/download/v1.4.2/blikvm-v4.deb",
		e[GitHub].AssetURL("blikvm", "blikvm", "v1.4.2", "blikvm-v4.deb"))
	require.Equal(t,
		"https://gitee.com/blikvm/blikvm/releases/download/v1.4.2/blikvm-v1-v2-v3.deb",
		e[Gitee].AssetURL("blikvm", "blikvm", "v1.4.2", "blikvm-v1-v2-v3.deb"))
}

func TestMeasurementsString(t *testing.T) {
	require.Equal(t, "github=12.500ms, gitee=unavailable", Measurements{GitHub: 12.5}.String())
}

func TestBreakersOpenAfterConsecutiveFailures(t *testing.T) {
	b := NewBreakers(BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute}, logger.NewLogger("mirror"))
	boom := errors.New("connection refused")

	require.ErrorIs(t, b.Execute(GitHub, func() error { return boom }), boom)
	require.ErrorIs(t, b.Execute(GitHub, func() error { return boom }), boom)
	require.Equal(t, gobreaker.StateOpen, b.State(GitHub))

	called := false
	err := b.Execute(GitHub, func() error { called = true; return nil })
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.False(t, called)

	// the other mirror is unaffected
	require.NoError(t, b.Execute(Gitee, func() error { return nil }))
	require.Equal(t, gobreaker.StateClosed, b.State(Gitee))
}

func TestBreakersIgnorePermanentFailures(t *testing.T) {
	b := NewBreakers(BreakerSettings{MaxFailures: 1}, logger.NewLogger("mirror"))
	notFound := fmt.Errorf("asset missing: %w", ErrPermanent)

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Execute(Gitee, func() error { return notFound }), ErrPermanent)
	}
	require.Equal(t, gobreaker.StateClosed, b.State(Gitee))
}

func TestBreakerSetsAreIndependent(t *testing.T) {
	settings := BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute}
	api := NewBreakers(settings, logger.NewLogger("mirror"))
	settings.Scope = "download"
	download := NewBreakers(settings, logger.NewLogger("mirror"))
	boom := errors.New("503 Service Unavailable")

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, api.Execute(GitHub, func() error { return boom }), boom)
	}
	require.Equal(t, gobreaker.StateOpen, api.State(GitHub))

	called := false
	require.NoError(t, download.Execute(GitHub, func() error { called = true; return nil }))
	require.True(t, called)
	require.Equal(t, gobreaker.StateClosed, download.State(GitHub))
}
