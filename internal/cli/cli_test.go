package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Badsworth/pfml-scripts-sub007/internal/config"
	"github.com/Badsworth/pfml-scripts-sub007/internal/pipeline"
	"github.com/Badsworth/pfml-scripts-sub007/internal/tracker"
	"github.com/Badsworth/pfml-scripts-sub007/internal/watchdog"
)

// isolate keeps tests away from the developer's own config and environment
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func dataDir(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `{"key":"claim-%03d","payload":{"first_name":"Test%d"}}`+"\n", i, i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ClaimsFile), []byte(b.String()), 0644))
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(append(args, "--log-format", "json"))
	err := cmd.Execute()
	return stdout.String(), err
}

func status(t *testing.T, dir string) statusReport {
	t.Helper()
	out, err := run(t, "status", dir, "--format", "json", "--pending")
	require.NoError(t, err)
	var rep statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	return rep
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitError},
		{"config", eris.Wrap(config.ErrInvalidConcurrency, "submit.concurrency=11"), ExitError},
		{"threshold", eris.Wrapf(watchdog.ErrThresholdReached, "%d consecutive failures", 3), ExitThreshold},
		{"persistence", eris.Wrap(tracker.ErrPersistence, "put claim-1"), ExitPersistence},
		{"interrupted", pipeline.ErrInterrupted, ExitInterrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestSubmit_DryRunIsIdempotent(t *testing.T) {
	isolate(t)
	dir := dataDir(t, 12)

	out, err := run(t, "submit", dir, "--backend", "dryrun", "--skip-postprocess", "--run-id", "first")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, config.ResultLogSubdir, "first.ndjson"), strings.TrimSpace(out))

	rep := status(t, dir)
	assert.Equal(t, 12, rep.Counts.Submitted)
	assert.Empty(t, rep.Pending)

	_, err = run(t, "submit", dir, "--backend", "dryrun", "--skip-postprocess", "--run-id", "second")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, config.ResultLogSubdir, "second.summary.json"))
	require.NoError(t, err)
	var summary struct {
		Stats struct {
			Attempted int64 `json:"attempted"`
			Skipped   int64 `json:"skipped"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, int64(0), summary.Stats.Attempted)
	assert.Equal(t, int64(12), summary.Stats.Skipped)

	_, err = os.Stat(filepath.Join(dir, tracker.LockFile))
	assert.True(t, os.IsNotExist(err), "lock must be released after the run")
}

func TestSubmit_ThresholdExitCode(t *testing.T) {
	isolate(t)
	dir := dataDir(t, 10)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
submit:
  concurrency: 1
  max_consecutive_failures: 2
backend:
  driver: dryrun
  dryrun_failure_rate: 1
postprocess:
  enabled: false
`), 0644))

	_, err := run(t, "--config", cfgPath, "submit", dir)
	require.Error(t, err)
	assert.Equal(t, ExitThreshold, ExitCode(err))

	rep := status(t, dir)
	assert.Equal(t, 0, rep.Counts.Submitted)
	assert.Equal(t, 2, rep.Counts.Failed)
	assert.Len(t, rep.Pending, 2)
}

func TestSubmit_RejectsConcurrencyOutOfRange(t *testing.T) {
	isolate(t)
	dir := dataDir(t, 1)

	for _, c := range []string{"0", "11"} {
		_, err := run(t, "submit", dir, "--backend", "dryrun", "--concurrency", c)
		require.Error(t, err, "concurrency %s", c)
		assert.ErrorIs(t, err, config.ErrInvalidConcurrency)
		assert.Equal(t, ExitError, ExitCode(err))
	}

	_, err := os.Stat(filepath.Join(dir, config.TrackerFile))
	assert.True(t, os.IsNotExist(err), "nothing is tracked when the run never starts")
}

func TestSubmit_MissingDataDir(t *testing.T) {
	isolate(t)
	_, err := run(t, "submit", filepath.Join(t.TempDir(), "nope"), "--backend", "dryrun")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSubmit_HTTPRequiresBaseURL(t *testing.T) {
	isolate(t)
	dir := dataDir(t, 1)
	_, err := run(t, "submit", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestSubmit_LockHeld(t *testing.T) {
	isolate(t)
	dir := dataDir(t, 1)

	release, err := tracker.AcquireLock(dir, "other-run")
	require.NoError(t, err)
	defer release() //nolint:errcheck

	_, err = run(t, "submit", dir, "--backend", "dryrun")
	assert.ErrorIs(t, err, tracker.ErrLockHeld)
}

func TestConfig_InitAndShow(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "pfml", "config.yaml")

	_, err := run(t, "config", "init", "--path", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_consecutive_failures: 10")

	_, err = run(t, "config", "init", "--path", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "config", "init", "--path", path, "--force")
	assert.NoError(t, err)

	t.Setenv("PFML_SUBMIT_BACKEND_TOKEN", "super-secret")
	out, err := run(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, redacted)
	assert.NotContains(t, out, "super-secret")
}

func TestStatus_TextFormat(t *testing.T) {
	isolate(t)
	dir := dataDir(t, 3)

	_, err := run(t, "submit", dir, "--backend", "dryrun", "--skip-postprocess")
	require.NoError(t, err)

	out, err := run(t, "status", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Submitted:           3")
	assert.Contains(t, out, "Total tracked:       3")

	_, err = run(t, "status", dir, "--format", "xml")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
