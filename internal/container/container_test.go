package container

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-maker-sim/config"
	"market-maker-sim/infrastructure/logger"
	"market-maker-sim/internal/engine"
)

type notifications struct {
	mu     sync.Mutex
	states []string
}

func (n *notifications) record(state string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, state)
}

func newTestContainer(t *testing.T, cfgPath string) (*Container, *notifications, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Feed.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Export.Dir = filepath.Join(dir, "exports")
	cfg.Export.ShutdownDir = dir

	c := NewWithConfig(cfg, cfgPath)
	c.logger = logger.NewNop()
	n := &notifications{}
	c.notify = n.record
	require.NoError(t, c.Build())
	return c, n, dir
}

func TestContainerRunLifecycle(t *testing.T) {
	c, n, dir := newTestContainer(t, "")
	assert.Nil(t, c.stream)
	assert.Nil(t, c.watcher)
	assert.Error(t, c.HealthCheck())

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		files []string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		files, err := c.Run(ctx)
		done <- result{files, err}
	}()

	require.Eventually(t, func() bool { return c.HealthCheck() == nil }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, engine.StateRunning, c.Engine().GetState())
	require.NoError(t, c.TogglePause())
	assert.Equal(t, engine.StatePaused, c.Engine().GetState())
	require.NoError(t, c.TogglePause())
	assert.True(t, c.Runner().Active())

	cancel()
	var res result
	select {
	case res = <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("container did not stop")
	}
	require.NoError(t, res.err)
	assert.Len(t, res.files, 5)
	for _, f := range res.files {
		assert.Equal(t, dir, filepath.Dir(f))
	}
	assert.Equal(t, engine.StateStopped, c.Engine().GetState())
	assert.Error(t, c.HealthCheck())

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, []string{daemon.SdNotifyReady, daemon.SdNotifyStopping}, n.states)
}

func TestContainerManualStart(t *testing.T) {
	c, _, _ := newTestContainer(t, "")
	c.cfg.Engine.AutoStart = false

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return c.Engine().GetState() == engine.StatePaused
	}, 5*time.Second, 5*time.Millisecond)
	assert.False(t, c.Runner().Active())
	cancel()
	assert.NoError(t, <-done)
}

func TestContainerBuildsWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("symbol: BTCUSDT\n"), 0o644))
	c, _, _ := newTestContainer(t, path)
	assert.NotNil(t, c.watcher)
}

func TestContainerRunRequiresBuild(t *testing.T) {
	c := NewWithConfig(config.Default(), "")
	_, err := c.Run(context.Background())
	assert.Error(t, err)
	assert.Error(t, c.HealthCheck())
	assert.NoError(t, c.Close())
}

func TestNewLoadsConfig(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
