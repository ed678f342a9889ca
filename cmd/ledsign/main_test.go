package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"ledsign/internal/config"
	"ledsign/internal/hardware"
	"ledsign/internal/pixelset"
	"ledsign/internal/program"
	"ledsign/internal/protocol"
	"ledsign/internal/testsupport"
)

const signPath = "/dev/bus/usb/001/004"

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	sign       *testsupport.Sign
	backend    *testsupport.Backend
	dir        string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("LEDSIGN_DEVICE", "")
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	content := fmt.Sprintf(
		"[device]\nlock_dir = %q\n\n[transfer]\nbusy_interval_ms = 1\n\n[cache]\nenabled = true\npath = %q\n\n[logging]\nlevel = \"error\"\n",
		cfg.Device.LockDir,
		cfg.Cache.Path,
	)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	sign := testsupport.NewSign(hardware.Config{'A', 'B'})
	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		sign:       sign,
		backend:    testsupport.NewBackend(signPath, sign),
		dir:        t.TempDir(),
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommandWith(e.backend)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (e *cliTestEnv) hardware() *hardware.Hardware {
	return hardware.FromGeometries(hardware.Config{'A', 'B'}, testsupport.Geometries())
}

func (e *cliTestEnv) writeProgram(t *testing.T, name string) string {
	t.Helper()
	hw := e.hardware()
	p := program.New(hw, program.Options{})
	w := hw.Width()
	p.AddKeypoint(0xff0000, 30, 30, pixelset.Of(w, 0, 1, 2), "a")
	p.AddKeypoint(0x00ff00, 50, 10, pixelset.Of(w, 5, 6), "b")
	p.AddKeypoint(0x0000ff, 60, 20, pixelset.Of(w, 0), "c")
	p.SetDuration(70)
	path := filepath.Join(e.dir, name)
	require.NoError(t, p.Save(context.Background(), path, false))
	return path
}

func describeFile(t *testing.T, hw *hardware.Hardware, path string) []string {
	t.Helper()
	p, err := program.Open(path, hw, program.Options{})
	require.NoError(t, err)
	kps, err := p.Keypoints(context.Background(), pixelset.Set{})
	require.NoError(t, err)
	out := make([]string, 0, len(kps))
	for _, kp := range kps {
		out = append(out, fmt.Sprintf("%06x %d %d %s", kp.Color, kp.End, kp.Duration, kp.Pixels))
	}
	slices.Sort(out)
	return out
}

func TestDevicesListsSigns(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "devices")
	require.NoError(t, err)
	require.Contains(t, out, signPath)
	require.Contains(t, out, "0123456789abcdef")
	require.Contains(t, out, "AB")

	out, err = env.run(t, "devices", "--json")
	require.NoError(t, err)
	require.Contains(t, out, `"serial": "0123456789abcdef"`)
}

func TestDevicesWithoutSigns(t *testing.T) {
	env := setupCLITestEnv(t)
	env.backend = &testsupport.Backend{}
	out, err := env.run(t, "devices")
	require.NoError(t, err)
	require.Contains(t, out, "No signs attached")

	_, err = env.run(t, "info")
	require.Error(t, err)
}

func TestInfoShowsMetadata(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "info")
	require.NoError(t, err)
	for _, want := range []string{signPath, "0123456789abcdef", "deadbeef000102", "Read-Write", "4,096 bytes", "100%"} {
		require.Contains(t, out, want)
	}
	require.Equal(t, 1, env.sign.Closes())
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "status", "--json")
	require.NoError(t, err)
	require.Contains(t, out, `"temperature_c"`)
	require.Equal(t, 1, env.sign.StatusRequests())
}

func TestUploadAndDownloadRoundTrip(t *testing.T) {
	env := setupCLITestEnv(t)
	src := env.writeProgram(t, "show.bin")

	out, err := env.run(t, "upload", src)
	require.NoError(t, err)
	require.Contains(t, out, "Uploaded")
	header, _ := env.sign.Stored()
	require.False(t, header.Empty())

	dst := filepath.Join(env.dir, "back.bin")
	out, err = env.run(t, "download", dst)
	require.NoError(t, err)
	require.Contains(t, out, "Saved")

	hw := env.hardware()
	require.Equal(t, describeFile(t, hw, src), describeFile(t, hw, dst))
}

func TestUploadRejectedForReadOnlySign(t *testing.T) {
	env := setupCLITestEnv(t)
	env.sign.Info.Access = 1
	src := env.writeProgram(t, "show.bin")

	_, err := env.run(t, "upload", src)
	require.ErrorIs(t, err, protocol.ErrAccessDenied)
	header, _ := env.sign.Stored()
	require.True(t, header.Empty())
}

func TestUploadRejectsMissingFile(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "upload", filepath.Join(env.dir, "missing.bin"))
	require.Error(t, err)
	require.NotContains(t, env.sign.Kinds(), protocol.KindProgramSetup)
}

func TestVerifyCleanProgram(t *testing.T) {
	env := setupCLITestEnv(t)
	src := env.writeProgram(t, "clean.bin")
	out, err := env.run(t, "verify", src)
	require.NoError(t, err)
	require.Contains(t, out, "No overlapping keypoints")

	out, err = env.run(t, "verify")
	require.NoError(t, err)
	require.Contains(t, out, "No overlapping keypoints")
}

func TestKeypointsTable(t *testing.T) {
	env := setupCLITestEnv(t)
	src := env.writeProgram(t, "show.bin")

	out, err := env.run(t, "keypoints", src)
	require.NoError(t, err)
	for _, want := range []string{"#ff0000", "#00ff00", "#0000ff", "Source"} {
		require.Contains(t, out, want)
	}

	out, err = env.run(t, "keypoints", "--letter", "1", src)
	require.NoError(t, err)
	require.Contains(t, out, "#00ff00")
	require.NotContains(t, out, "#ff0000")

	out, err = env.run(t, "keypoints")
	require.NoError(t, err)
	require.Contains(t, out, "No keypoints")
}

func TestCacheListAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "info")
	require.NoError(t, err)

	out, err := env.run(t, "cache", "list")
	require.NoError(t, err)
	require.Contains(t, out, "2304")
	require.Contains(t, out, "1536")

	out, err = env.run(t, "cache", "clear")
	require.NoError(t, err)
	require.Contains(t, out, "Cleared")

	out, err = env.run(t, "cache", "list")
	require.NoError(t, err)
	require.Contains(t, out, "is empty")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "config", "validate")
	require.NoError(t, err)
	require.Contains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, err = env.run(t, "config", "init", "--path", target)
	require.NoError(t, err)
	require.Contains(t, out, "Wrote sample configuration")
	_, err = os.Stat(target)
	require.NoError(t, err)

	_, err = env.run(t, "config", "init", "--path", target)
	require.Error(t, err)
}

func TestConfigShowPrintsEffectiveValues(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "config", "show")
	require.NoError(t, err)
	require.Contains(t, out, "# loaded from "+env.configPath)
	require.Contains(t, out, "busy_interval_ms = 1")
	require.Contains(t, out, env.cfg.Cache.Path)
}
