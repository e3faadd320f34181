package update

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamancini/autodeploy/internal/destination"
	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/payload"
	"github.com/adamancini/autodeploy/internal/types"
)

type fakeActivity struct {
	active bool
	err    error
}

func (f *fakeActivity) IsActive(title, path string) (bool, error) {
	return f.active, f.err
}

type notification struct {
	message     string
	description string
	allowSkip   bool
}

type fakeNotifier struct {
	answer bool
	err    error
	calls  []notification
}

func (f *fakeNotifier) Notify(message, description string, info manifest.UpdateQueryInfo, allowSkip bool) (bool, error) {
	f.calls = append(f.calls, notification{message: message, description: description, allowSkip: allowSkip})
	return f.answer, f.err
}

func testPayload(t *testing.T, available string) *payload.Payload {
	t.Helper()
	d := &manifest.Deployment{
		Description: manifest.Description{Manufacturer: "Acme", Product: "Pricing", Publisher: "Acme IT"},
		Settings: manifest.Settings{
			DeploymentBasis: types.DeploymentBasisPerUser,
			UpdateBehavior:  manifest.UpdateBehavior{Mode: types.UpdateModeOptional},
		},
		ArtifactURI: "/share/Pricing.xml",
	}
	a := &manifest.Artifact{
		Identity: manifest.Identity{Name: "Pricing", Title: "Pricing Tools", Version: manifest.MustParseVersion(available), FileExtension: "xll"},
		URI:      "/share/Pricing.xll",
		Size:     100,
		AssetFiles: []manifest.AssetFile{
			{Name: "rates.csv", URI: "/share/rates.csv", Size: 20},
		},
	}
	p, err := payload.New(manifest.FileHost{HostType: types.FileHostFileServer}, d, a, destination.Roots{PerUser: t.TempDir()})
	require.NoError(t, err)
	return p
}

// steppingClock returns a clock that advances one minute per call.
func steppingClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

func TestCheck_Fields(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(&fakeNotifier{}, &fakeActivity{}).WithClock(steppingClock(start))

	p := testPayload(t, "2.0")
	p.Deployment.Settings.MinimumRequiredVersion = manifest.MustParseVersion("1.5")

	c := engine.Check(p, manifest.MustParseVersion("1.0"), nil)

	assert.True(t, c.Info.UpdateAvailable)
	assert.True(t, c.Info.IsMandatoryUpdate)
	assert.False(t, c.Info.IsRestartRequired)
	assert.Equal(t, "2.0", c.Info.AvailableVersion.String())
	assert.Equal(t, "1.0", c.Info.DeployedVersion.String())
	assert.Equal(t, "1.5", c.Info.MinimumRequiredVersion.String())
	assert.Equal(t, int64(120), c.Info.Size)
	assert.Equal(t, start.Add(time.Minute), c.Info.LastChecked)
	assert.Equal(t, c.Info.LastChecked, c.Info.FirstNotified)
	assert.Same(t, p, c.Payload)
}

func TestCheck_FirstNotifiedChangesOnlyWithAvailableVersion(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(&fakeNotifier{}, nil).WithClock(steppingClock(start))
	deployed := manifest.MustParseVersion("0.9")

	var (
		previous *manifest.UpdateQueryInfo
		firsts   []time.Time
	)
	for _, available := range []string{"1.0", "1.0", "2.0", "2.0"} {
		c := engine.Check(testPayload(t, available), deployed, previous)
		firsts = append(firsts, c.Info.FirstNotified)
		info := c.Info
		previous = &info
	}

	assert.Equal(t, firsts[0], firsts[1], "repeat of 1.0 keeps FirstNotified")
	assert.NotEqual(t, firsts[1], firsts[2], "1.0 -> 2.0 resets FirstNotified")
	assert.Equal(t, firsts[2], firsts[3], "repeat of 2.0 keeps FirstNotified")
}

func TestCheck_IdempotentExceptLastChecked(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(&fakeNotifier{}, nil).WithClock(steppingClock(start))
	p := testPayload(t, "1.0")
	deployed := manifest.MustParseVersion("1.0")

	first := engine.Check(p, deployed, nil).Info
	second := engine.Check(p, deployed, &first).Info

	assert.NotEqual(t, first.LastChecked, second.LastChecked)
	second.LastChecked = first.LastChecked
	assert.Equal(t, first, second)
}

func TestCheck_CarriesDependenciesPending(t *testing.T) {
	engine := NewEngine(&fakeNotifier{}, nil)
	p := testPayload(t, "1.0")
	previous := &manifest.UpdateQueryInfo{AvailableVersion: manifest.MustParseVersion("1.0"), DependenciesPending: true}

	c := engine.Check(p, manifest.MustParseVersion("1.0"), previous)
	assert.True(t, c.Info.DependenciesPending)
}

func TestGetCheckedUpdate_ReadsPersistedRecord(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(&fakeNotifier{}, nil).WithClock(steppingClock(start))
	p := testPayload(t, "2.0")

	firstNotified := time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, manifest.NewLocalStore().Serialize(&manifest.UpdateQueryInfo{
		AvailableVersion: manifest.MustParseVersion("2.0"),
		FirstNotified:    firstNotified,
		LastNotified:     firstNotified,
	}, p.QueryInfoRecordPath()))

	c := engine.GetCheckedUpdate(p, manifest.MustParseVersion("1.0"))
	assert.Equal(t, firstNotified, c.Info.FirstNotified)
}

func TestCanProceedWithUpdate(t *testing.T) {
	tests := []struct {
		name            string
		deployed        string
		available       string
		mode            types.UpdateMode
		minimum         string
		notifyClient    bool
		requiresRestart bool
		answer          bool
		want            bool
		wantDialog      bool
		wantAllowSkip   bool
	}{
		{
			name: "optional silent no update", deployed: "1.0", available: "1.0",
			mode: types.UpdateModeOptional, want: false, wantDialog: false,
		},
		{
			name: "optional silent with update", deployed: "1.0", available: "1.1",
			mode: types.UpdateModeOptional, want: true, wantDialog: false,
		},
		{
			name: "notify client accepted", deployed: "1.0", available: "1.1",
			mode: types.UpdateModeOptional, notifyClient: true, answer: true,
			want: true, wantDialog: true, wantAllowSkip: true,
		},
		{
			name: "notify client declined", deployed: "1.0", available: "1.1",
			mode: types.UpdateModeOptional, notifyClient: true, answer: false,
			want: false, wantDialog: true, wantAllowSkip: true,
		},
		{
			name: "notify client without update", deployed: "1.1", available: "1.1",
			mode: types.UpdateModeOptional, notifyClient: true, answer: true,
			want: false, wantDialog: false,
		},
		{
			name: "mandatory with restart", deployed: "1.0", available: "2.0", minimum: "2.0",
			mode: types.UpdateModeForced, requiresRestart: true, answer: true,
			want: true, wantDialog: true, wantAllowSkip: false,
		},
		{
			name: "mandatory without restart is silent", deployed: "1.0", available: "2.0",
			mode: types.UpdateModeForced, want: true, wantDialog: false,
		},
		{
			name: "forced without newer version", deployed: "2.0", available: "2.0",
			mode: types.UpdateModeForced, requiresRestart: true, want: false, wantDialog: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &fakeNotifier{answer: tt.answer}
			engine := NewEngine(notifier, &fakeActivity{})

			p := testPayload(t, tt.available)
			p.Deployment.Settings.UpdateBehavior.Mode = tt.mode
			p.Deployment.Settings.UpdateBehavior.NotifyClient = tt.notifyClient
			p.Deployment.Settings.UpdateBehavior.RequiresRestart = tt.requiresRestart
			if tt.minimum != "" {
				p.Deployment.Settings.MinimumRequiredVersion = manifest.MustParseVersion(tt.minimum)
			}

			c := engine.Check(p, manifest.MustParseVersion(tt.deployed), nil)
			got, err := engine.CanProceedWithUpdate(c)
			require.NoError(t, err)

			assert.Equal(t, tt.want, got)
			if tt.wantDialog {
				require.Len(t, notifier.calls, 1)
				assert.Equal(t, tt.wantAllowSkip, notifier.calls[0].allowSkip)
				assert.Equal(t, "Pricing (Acme IT)", notifier.calls[0].description)
			} else {
				assert.Empty(t, notifier.calls)
			}
		})
	}
}

func TestCanProceedWithUpdate_NotifierError(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("no terminal")}
	engine := NewEngine(notifier, nil)

	p := testPayload(t, "2.0")
	p.Deployment.Settings.UpdateBehavior.NotifyClient = true

	c := engine.Check(p, manifest.MustParseVersion("1.0"), nil)
	ok, err := engine.CanProceedWithUpdate(c)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestCanProceedWithUpdate_UpdatesLastNotified(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(&fakeNotifier{answer: true}, nil).WithClock(steppingClock(start))

	p := testPayload(t, "2.0")
	p.Deployment.Settings.UpdateBehavior.NotifyClient = true
	previous := &manifest.UpdateQueryInfo{
		AvailableVersion: manifest.MustParseVersion("2.0"),
		FirstNotified:    start,
		LastNotified:     start,
	}

	c := engine.Check(p, manifest.MustParseVersion("1.0"), previous)
	_, err := engine.CanProceedWithUpdate(c)
	require.NoError(t, err)

	assert.Equal(t, start, c.Info.FirstNotified)
	assert.True(t, c.Info.LastNotified.After(start))
}

func TestDescription(t *testing.T) {
	tests := []struct {
		name       string
		mandatory  bool
		restart    bool
		contains   []string
		notContain []string
	}{
		{"mandatory restart", true, true, []string{"Please wait", "MUST restart"}, []string{"defer"}},
		{"mandatory", true, false, []string{"Please wait"}, []string{"MUST restart", "defer"}},
		{"optional restart", false, true, []string{"defer until later", "MUST restart"}, []string{"Please wait"}},
		{"optional", false, false, []string{"defer until later"}, []string{"MUST restart", "Please wait"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &CheckedUpdate{
				Info:    manifest.UpdateQueryInfo{IsMandatoryUpdate: tt.mandatory, IsRestartRequired: tt.restart},
				Payload: testPayload(t, "1.0"),
			}
			desc := c.Description()
			assert.True(t, strings.HasPrefix(desc, "A new version of Pricing Tools is available!"))
			for _, s := range tt.contains {
				assert.Contains(t, desc, s)
			}
			for _, s := range tt.notContain {
				assert.NotContains(t, desc, s)
			}
		})
	}
}

func TestRemind(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	period := manifest.Expiration{MaximumAge: 1, UnitOfTime: types.UnitHours}

	tests := []struct {
		name         string
		available    string
		lastNotified time.Time
		want         bool
	}{
		{"period elapsed", "2.0", start.Add(-2 * time.Hour), true},
		{"within period", "2.0", start.Add(-10 * time.Minute), false},
		{"nothing to remind", "1.0", start.Add(-2 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &fakeNotifier{answer: false}
			engine := NewEngine(notifier, nil).WithClock(func() time.Time { return start })

			previous := &manifest.UpdateQueryInfo{
				AvailableVersion: manifest.MustParseVersion(tt.available),
				FirstNotified:    tt.lastNotified,
				LastNotified:     tt.lastNotified,
			}
			c := engine.Check(testPayload(t, tt.available), manifest.MustParseVersion("1.0"), previous)

			got, err := engine.Remind(c, period)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.want {
				require.Len(t, notifier.calls, 1)
				assert.False(t, notifier.calls[0].allowSkip)
				assert.Contains(t, notifier.calls[0].message, "still waiting to be installed")
				assert.Equal(t, start, c.Info.LastNotified)
				assert.Equal(t, tt.lastNotified, c.Info.FirstNotified)
			} else {
				assert.Empty(t, notifier.calls)
			}
		})
	}
}

func TestRemindRestart(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	period := manifest.Expiration{MaximumAge: 1, UnitOfTime: types.UnitHours}

	tests := []struct {
		name         string
		lastNotified time.Time
		want         bool
	}{
		{"period elapsed", start.Add(-2 * time.Hour), true},
		{"within period", start.Add(-10 * time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &fakeNotifier{}
			engine := NewEngine(notifier, nil).WithClock(func() time.Time { return start })

			previous := &manifest.UpdateQueryInfo{
				AvailableVersion: manifest.MustParseVersion("2.0"),
				FirstNotified:    tt.lastNotified,
				LastNotified:     tt.lastNotified,
			}
			c := engine.Check(testPayload(t, "2.0"), manifest.MustParseVersion("2.0"), previous)
			require.False(t, c.Info.UpdateAvailable)

			got, err := engine.RemindRestart(c, period)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.want {
				require.Len(t, notifier.calls, 1)
				assert.Contains(t, notifier.calls[0].message, "updated to version 2.0")
				assert.False(t, notifier.calls[0].allowSkip)
				assert.Equal(t, start, c.Info.LastNotified)
			} else {
				assert.Empty(t, notifier.calls)
			}
		})
	}
}

func TestRemind_NotifierError(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	notifier := &fakeNotifier{err: errors.New("no session")}
	engine := NewEngine(notifier, nil).WithClock(func() time.Time { return start })

	previous := &manifest.UpdateQueryInfo{
		AvailableVersion: manifest.MustParseVersion("2.0"),
		FirstNotified:    start.Add(-3 * time.Hour),
		LastNotified:     start.Add(-3 * time.Hour),
	}
	c := engine.Check(testPayload(t, "2.0"), manifest.MustParseVersion("1.0"), previous)

	_, err := engine.Remind(c, manifest.Expiration{MaximumAge: 1, UnitOfTime: types.UnitHours})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session")
	assert.Equal(t, previous.LastNotified, c.Info.LastNotified)
}
