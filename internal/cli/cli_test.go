package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/xrayperf/internal/config"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/engine"
	"github.com/wesleyorama2/xrayperf/internal/xray"
	"github.com/wesleyorama2/xrayperf/internal/xray/xraytest"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	for _, key := range []string{config.EnvBaseURL, config.EnvToken} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err = root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runConfig(baseURL, extra string) string {
	return fmt.Sprintf(`{
  // quick profile for tests
  "base_url": %q,
  "token": "cli-token",
  "name": "cli run",
  "load": {"vus": 2, "duration": "300ms", "graceful_stop": "1s"},
  "think_time": {"min": "5ms", "max": "10ms"},
  "templates": ["verify-repo", "scan-status"]%s
}`, baseURL, extra)
}

func TestRootCmd_Help(t *testing.T) {
	stdout, _, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, stdout, "run")
	assert.Contains(t, stdout, "templates")
	assert.Contains(t, stdout, "validate")
}

func TestParseStages(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []config.StageConfig
		wantErr string
	}{
		{
			name:  "three stages",
			input: "30s:10, 2m:10,30s:0",
			want: []config.StageConfig{
				{Duration: config.Duration(30 * time.Second), Target: 10},
				{Duration: config.Duration(2 * time.Minute), Target: 10},
				{Duration: config.Duration(30 * time.Second), Target: 0},
			},
		},
		{name: "missing target", input: "30s", wantErr: "expected 'duration:target'"},
		{name: "bad duration", input: "soon:5", wantErr: "invalid duration"},
		{name: "bad target", input: "10s:many", wantErr: "invalid target"},
		{name: "empty", input: " , ", wantErr: "at least one stage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStages(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func parseOverrides(t *testing.T, cfg *config.Config, args ...string) error {
	t.Helper()
	opts := &configOptions{}
	cmd := &cobra.Command{Use: "test"}
	opts.register(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return opts.apply(cmd, cfg)
}

func TestConfigOptions_Apply(t *testing.T) {
	t.Run("unset flags leave the file alone", func(t *testing.T) {
		cfg := &config.Config{Name: "from-file", Load: config.LoadProfile{VUs: 7}}
		require.NoError(t, parseOverrides(t, cfg))
		assert.Equal(t, "from-file", cfg.Name)
		assert.Equal(t, 7, cfg.Load.VUs)
		assert.Nil(t, cfg.ThinkTime)
	})

	t.Run("constant vus", func(t *testing.T) {
		cfg := &config.Config{}
		require.NoError(t, parseOverrides(t, cfg,
			"--vus", "25", "--duration", "2m", "--templates", "create-repo,scan-status",
			"--seed", "42", "--timeout", "5s", "--insecure", "--name", "smoke"))
		assert.Equal(t, 25, cfg.Load.VUs)
		assert.Equal(t, config.Duration(2*time.Minute), cfg.Load.Duration)
		assert.Equal(t, []string{"create-repo", "scan-status"}, cfg.Templates)
		assert.Equal(t, int64(42), cfg.Seed)
		assert.Equal(t, config.Duration(5*time.Second), cfg.HTTP.Timeout)
		assert.True(t, cfg.HTTP.InsecureSkipVerify)
		assert.Equal(t, "smoke", cfg.Name)
	})

	t.Run("stages select ramping-vus and clear the file duration", func(t *testing.T) {
		cfg := &config.Config{Load: config.LoadProfile{Duration: config.Duration(time.Minute)}}
		require.NoError(t, parseOverrides(t, cfg, "--stages", "10s:5,10s:0"))
		assert.Equal(t, config.ExecutorRampingVUs, cfg.Load.Executor)
		assert.Zero(t, cfg.Load.Duration)
		assert.Len(t, cfg.Load.Stages, 2)
	})

	t.Run("rate selects constant-arrival-rate", func(t *testing.T) {
		cfg := &config.Config{}
		require.NoError(t, parseOverrides(t, cfg, "--rate", "12.5", "--max-vus", "40", "--pre-allocated-vus", "8"))
		assert.Equal(t, config.ExecutorConstantArrivalRate, cfg.Load.Executor)
		assert.Equal(t, 12.5, cfg.Load.Rate)
		assert.Equal(t, 40, cfg.Load.MaxVUs)
		assert.Equal(t, 8, cfg.Load.PreAllocatedVUs)
	})

	t.Run("explicit executor wins", func(t *testing.T) {
		cfg := &config.Config{}
		require.NoError(t, parseOverrides(t, cfg, "--rate", "3", "--executor", "constant-vus"))
		assert.Equal(t, config.ExecutorConstantVUs, cfg.Load.Executor)
	})

	t.Run("think time keeps the other bound", func(t *testing.T) {
		cfg := &config.Config{ThinkTime: &config.ThinkTimeConfig{
			Min: config.Duration(100 * time.Millisecond),
			Max: config.Duration(time.Second),
		}}
		require.NoError(t, parseOverrides(t, cfg, "--think-max", "3s"))
		assert.Equal(t, config.Duration(100*time.Millisecond), cfg.ThinkTime.Min)
		assert.Equal(t, config.Duration(3*time.Second), cfg.ThinkTime.Max)
	})

	t.Run("think time defaults the unset bound", func(t *testing.T) {
		cfg := &config.Config{}
		require.NoError(t, parseOverrides(t, cfg, "--think-min", "0"))
		assert.Zero(t, cfg.ThinkTime.Min)
		assert.Equal(t, config.Duration(config.DefaultThinkMax), cfg.ThinkTime.Max)
	})

	t.Run("bad values", func(t *testing.T) {
		for _, args := range [][]string{
			{"--duration", "forever"},
			{"--stages", "x"},
			{"--think-min", "never"},
			{"--timeout", "later"},
		} {
			err := parseOverrides(t, &config.Config{}, args...)
			require.Error(t, err, args)
			assert.Contains(t, err.Error(), args[0])
		}
	})
}

func TestValidateCmd(t *testing.T) {
	path := writeConfig(t, runConfig("https://acme.jfrog.io", ""))

	stdout, _, err := execute(t, "validate", "--config", path, "--no-color", "--vus", "9")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ configuration is valid")
	assert.Contains(t, stdout, "Name:        cli run")
	assert.Contains(t, stdout, "https://acme.jfrog.io (token <redacted>)")
	assert.NotContains(t, stdout, "cli-token")
	assert.Contains(t, stdout, "VUs:         9 for 300ms")
	assert.Contains(t, stdout, "Templates:   verify-repo, scan-status")
}

func TestValidateCmd_Ramping(t *testing.T) {
	path := writeConfig(t, runConfig("https://acme.jfrog.io", ""))

	stdout, _, err := execute(t, "validate", "--config", path, "--no-color", "--stages", "10s:5,20s:0")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Executor:    ramping-vus")
	assert.Contains(t, stdout, "10s→5, 20s→0 (30s)")
}

func TestValidateCmd_Invalid(t *testing.T) {
	path := writeConfig(t, `{"base_url": "ftp://nowhere", "templates": ["create-repos"]}`)

	_, _, err := execute(t, "validate", "--config", path)
	require.Error(t, err)

	var verr *config.ValidationErrors
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "base_url")
	assert.Contains(t, err.Error(), "token")
	assert.Contains(t, err.Error(), `did you mean "create-repo"?`)
}

func TestValidateCmd_MissingExplicitConfig(t *testing.T) {
	_, _, err := execute(t, "validate", "--config", filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestValidateCmd_EnvOnly(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte(config.EnvBaseURL+"=https://env.jfrog.io\n"+config.EnvToken+"=env-token\n"), 0o644))

	stdout, _, err := execute(t, "validate", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, stdout, "https://env.jfrog.io")
}

func TestTemplatesCmd(t *testing.T) {
	stdout, _, err := execute(t, "templates")
	require.NoError(t, err)

	assert.Contains(t, stdout, "KEY")
	for _, tmpl := range xray.Catalog() {
		assert.Contains(t, stdout, tmpl.Key)
		assert.Contains(t, stdout, tmpl.Path)
	}
}

func TestTemplatesCmd_ShowPayload(t *testing.T) {
	stdout, _, err := execute(t, "templates", "create-policy", "verify-repo", "--show-payload", "--no-color")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Create Policy  (create-policy)")
	assert.Contains(t, stdout, "POST /xray/api/v2/policies")
	assert.Contains(t, stdout, "Expected: 201")
	assert.Contains(t, stdout, `"name"`)
	assert.Contains(t, stdout, xray.PolicyPrefix)
	assert.Contains(t, stdout, "GET /artifactory/api/repositories")
	assert.Contains(t, stdout, "(no body)")
	assert.NotContains(t, stdout, "\033[")
}

func TestTemplatesCmd_UnknownKey(t *testing.T) {
	_, _, err := execute(t, "templates", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown template "nope"`)
}

func TestRunCmd_WritesReports(t *testing.T) {
	server := xraytest.NewServer()
	defer server.Close()

	path := writeConfig(t, runConfig(server.URL, ""))
	out := filepath.Join(t.TempDir(), "reports", "run")

	stdout, _, err := execute(t, "run", "--config", path, "--output", out, "--no-color", "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, stdout, "cli run - Running [constant-vus]")
	assert.Contains(t, stdout, "cli run - Completed ✓")
	assert.Contains(t, stdout, "Verify Repo")
	assert.Contains(t, stdout, "Report: "+out+".html")

	assert.FileExists(t, out+".html")
	assert.FileExists(t, out+".json")

	calls := server.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "Bearer cli-token", calls[0].Authorization)
}

func TestRunCmd_JSONToStdout(t *testing.T) {
	server := xraytest.NewServer()
	defer server.Close()

	path := writeConfig(t, runConfig(server.URL, ""))

	stdout, stderr, err := execute(t, "run", "--config", path, "--json", "--quiet", "--log-level", "error")
	require.NoError(t, err)

	var result engine.TestResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result), stdout)
	assert.Equal(t, "cli run", result.Name)
	assert.True(t, result.Passed)
	assert.Positive(t, result.Metrics.TotalRequests)
	assert.Contains(t, stderr, "PASSED")
}

func TestRunCmd_ThresholdFailure(t *testing.T) {
	server := xraytest.NewServer()
	defer server.Close()

	path := writeConfig(t, runConfig(server.URL, `,
  "thresholds": {"http_reqs": ["count > 1000000"]}`))

	stdout, _, err := execute(t, "run", "--config", path, "--quiet", "--log-level", "error")
	require.ErrorIs(t, err, ErrThresholdsFailed)
	assert.Equal(t, "FAILED\n", stdout)
}

func TestRunCmd_Interrupted(t *testing.T) {
	server := xraytest.NewServer()
	defer server.Close()

	path := writeConfig(t, runConfig(server.URL, ""))
	for _, key := range []string{config.EnvBaseURL, config.EnvToken} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--config", path, "--duration", "1h", "--quiet", "--log-level", "error"})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := root.ExecuteContext(ctx)
	require.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, "INTERRUPTED\n", out.String())
}

func TestRunCmd_MetricsServer(t *testing.T) {
	server := xraytest.NewServer()
	defer server.Close()

	path := writeConfig(t, runConfig(server.URL, ""))

	_, stderr, err := execute(t, "run", "--config", path, "--quiet", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, stderr, "serving metrics")
	assert.Contains(t, stderr, "run finished")
}

func TestRunCmd_BadLogLevel(t *testing.T) {
	_, _, err := execute(t, "run", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestWriteReports(t *testing.T) {
	result := &engine.TestResult{Name: "nightly", Passed: true}

	t.Run("html path", func(t *testing.T) {
		dir := t.TempDir()
		var stdout, notices bytes.Buffer
		opts := &runOptions{outputPath: filepath.Join(dir, "r.html")}
		require.NoError(t, writeReports(&stdout, &notices, result, opts))
		assert.FileExists(t, filepath.Join(dir, "r.html"))
		assert.NoFileExists(t, filepath.Join(dir, "r.json"))
		assert.Empty(t, stdout.String())
	})

	t.Run("json flag with html path writes both", func(t *testing.T) {
		dir := t.TempDir()
		var stdout, notices bytes.Buffer
		opts := &runOptions{outputPath: filepath.Join(dir, "r.html"), jsonOutput: true}
		require.NoError(t, writeReports(&stdout, &notices, result, opts))
		assert.FileExists(t, filepath.Join(dir, "r.html"))
		assert.FileExists(t, filepath.Join(dir, "r.json"))
	})

	t.Run("nothing requested", func(t *testing.T) {
		var stdout, notices bytes.Buffer
		require.NoError(t, writeReports(&stdout, &notices, result, &runOptions{}))
		assert.Empty(t, stdout.String())
		assert.Empty(t, notices.String())
	})
}
