package host

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu     sync.Mutex
	calls  []string
	err    error
	output []byte
}

func (r *recordingRunner) Run(name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, strings.Join(append([]string{name}, args...), " "))
	return r.output, r.err
}

func TestDispatcher_SerializesCalls(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	var (
		running atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.Do(context.Background(), func() error {
				if running.Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.False(t, overlap.Load(), "host calls overlapped")
}

func TestDispatcher_ReturnsCallError(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	want := errors.New("host busy")
	assert.Equal(t, want, d.Do(context.Background(), func() error { return want }))
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	err := d.Do(context.Background(), func() error { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.NoError(t, d.Do(context.Background(), func() error { return nil }))
}

func TestDispatcher_Closed(t *testing.T) {
	d := NewDispatcher()
	d.Close()
	d.Close()

	err := d.Do(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

func TestDispatcher_ContextCancelledWhileWaiting(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = d.Do(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := d.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestCommandHost(t *testing.T) {
	runner := &recordingRunner{}
	h := NewCommandHost(Commands{
		Load:      []string{"hostctl", "load", "{path}"},
		Unload:    []string{"hostctl", "unload", "{path}"},
		Install:   []string{"hostctl", "install", "--title={title}", "{path}"},
		Uninstall: []string{"hostctl", "uninstall", "{title}"},
		Close:     []string{"hostctl", "quit"},
	}, runner)

	require.NoError(t, h.Load("/opt/a.xll"))
	require.NoError(t, h.Unload("/opt/a.xll"))
	require.NoError(t, h.Install("Pricing Tools", "/opt/a.xll"))
	require.NoError(t, h.Uninstall("Pricing Tools", "/opt/a.xll"))
	require.NoError(t, h.Close())

	assert.Equal(t, []string{
		"hostctl load /opt/a.xll",
		"hostctl unload /opt/a.xll",
		"hostctl install --title=Pricing Tools /opt/a.xll",
		"hostctl uninstall Pricing Tools",
		"hostctl quit",
	}, runner.calls)
}

func TestCommandHost_EmptyTemplateIsNoop(t *testing.T) {
	runner := &recordingRunner{}
	h := NewCommandHost(Commands{}, runner)

	assert.NoError(t, h.Load("/opt/a.xll"))
	assert.NoError(t, h.Close())
	assert.Empty(t, runner.calls)
	assert.False(t, h.CanProbe())

	active, err := h.IsActive("t", "/opt/a.xll")
	assert.NoError(t, err)
	assert.False(t, active)
}

func TestCommandHost_CommandFailure(t *testing.T) {
	runner := &recordingRunner{err: errors.New("exit status 2"), output: []byte("locked")}
	h := NewCommandHost(Commands{Unload: []string{"hostctl", "unload", "{path}"}}, runner)

	err := h.Unload("/opt/a.xll")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

func TestCommandHost_IsActive(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX true/false")
	}
	active := NewCommandHost(Commands{IsActive: []string{"true"}}, nil)
	got, err := active.IsActive("t", "/p")
	require.NoError(t, err)
	assert.True(t, got)

	inactive := NewCommandHost(Commands{IsActive: []string{"false"}}, nil)
	got, err = inactive.IsActive("t", "/p")
	require.NoError(t, err)
	assert.False(t, got)

	missing := NewCommandHost(Commands{IsActive: []string{"definitely-not-a-command-autodeploy"}}, nil)
	_, err = missing.IsActive("t", "/p")
	assert.Error(t, err)
	var exitErr *exec.ExitError
	assert.False(t, errors.As(err, &exitErr))
}

type fakeIntegration struct {
	calls []string
}

func (f *fakeIntegration) Load(path string) error {
	f.calls = append(f.calls, "load "+path)
	return nil
}

func (f *fakeIntegration) Unload(path string) error {
	f.calls = append(f.calls, "unload "+path)
	return nil
}

func (f *fakeIntegration) Install(title, path string) error {
	f.calls = append(f.calls, "install "+title)
	return nil
}

func (f *fakeIntegration) Uninstall(title, path string) error {
	f.calls = append(f.calls, "uninstall "+title)
	return nil
}
func (f *fakeIntegration) Close() error {
	f.calls = append(f.calls, "close")
	return nil
}

func TestController(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	fake := &fakeIntegration{}
	c := NewController(d, fake, fake, fake)
	ctx := context.Background()

	require.NoError(t, c.Deactivate(ctx, "Pricing", "/a", false))
	require.NoError(t, c.Activate(ctx, "Pricing", "/a", false))
	require.NoError(t, c.Deactivate(ctx, "Pricing", "/a", true))
	require.NoError(t, c.Activate(ctx, "Pricing", "/a", true))
	require.NoError(t, c.CloseHost(ctx))

	assert.Equal(t, []string{"unload /a", "load /a", "uninstall Pricing", "install Pricing", "close"}, fake.calls)
}

func TestController_ProbeRunsOnDispatcher(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	runner := &recordingRunner{}
	commands := NewCommandHost(Commands{IsActive: []string{"probe", "{title}"}}, runner)
	probe := NewController(d, commands, commands, commands).Probe(commands)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = d.Do(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	answered := make(chan bool, 1)
	go func() {
		active, err := probe.IsActive("Pricing", "/a")
		assert.NoError(t, err)
		answered <- active
	}()

	select {
	case <-answered:
		t.Fatal("probe ran while another host call held the dispatcher")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	select {
	case active := <-answered:
		assert.True(t, active)
	case <-time.After(2 * time.Second):
		t.Fatal("probe never ran")
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, []string{"probe Pricing"}, runner.calls)
}

func TestController_ProbeAfterClose(t *testing.T) {
	d := NewDispatcher()
	d.Close()

	_, err := NewController(d, nil, nil, nil).Probe(staticProbe{active: true}).IsActive("t", "p")
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

func TestProcessProbe_OwnOpenFile(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("open file listing is only reliable on linux")
	}
	path := filepath.Join(t.TempDir(), "Pricing.xll")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	self, err := process.NewProcess(int32(os.Getpid()))
	require.NoError(t, err)
	name, err := self.Name()
	require.NoError(t, err)

	probe := &ProcessProbe{name: name, processes: func() ([]*process.Process, error) {
		return []*process.Process{self}, nil
	}}

	active, err := probe.IsActive("Pricing", path)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = probe.IsActive("Pricing", filepath.Join(t.TempDir(), "Other.xll"))
	require.NoError(t, err)
	assert.False(t, active)

	other := &ProcessProbe{name: "not-the-host", processes: probe.processes}
	active, err = other.IsActive("Pricing", path)
	require.NoError(t, err)
	assert.False(t, active)
}

type staticProbe struct {
	active bool
	err    error
}

func (s staticProbe) IsActive(title, path string) (bool, error) {
	return s.active, s.err
}

func TestAnyActive(t *testing.T) {
	got, err := AnyActive{staticProbe{}, staticProbe{active: true}}.IsActive("t", "p")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = AnyActive{staticProbe{}, staticProbe{}}.IsActive("t", "p")
	require.NoError(t, err)
	assert.False(t, got)

	_, err = AnyActive{staticProbe{err: errors.New("x")}}.IsActive("t", "p")
	assert.Error(t, err)
}
