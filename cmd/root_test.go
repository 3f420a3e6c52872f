// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scribe-cli/internal/config"
	"github.com/xkilldash9x/scribe-cli/internal/observability"
	"github.com/xkilldash9x/scribe-cli/internal/publisher"
)

// fakeService records what the commands ask of the workflow.
type fakeService struct {
	cfg     config.Interface
	creds   publisher.Credentials
	content publisher.Content
	target  *publisher.TargetRef

	result *publisher.WorkflowResult
	works  []publisher.Work
	err    error
}

func (f *fakeService) SubmitContent(_ context.Context, creds publisher.Credentials, content publisher.Content, target *publisher.TargetRef) (*publisher.WorkflowResult, error) {
	f.creds, f.content, f.target = creds, content, target
	return f.result, f.err
}

func (f *fakeService) ListWorks(_ context.Context, creds publisher.Credentials) ([]publisher.Work, error) {
	f.creds = creds
	return f.works, f.err
}

// resetForTest isolates a test from configuration on the machine and from
// earlier tests.
func resetForTest(t *testing.T, svc *fakeService) {
	t.Helper()
	cfgFile = ""
	homedir.DisableCache = true
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvPlatformIdentity, "writer@example.com")
	t.Setenv(config.EnvPlatformSecret, "env-secret")
	t.Setenv("SCRIBE_LOGGER_LEVEL", "fatal")

	original := newService
	newService = func(cfg config.Interface) publisher.Service {
		if svc != nil {
			svc.cfg = cfg
		}
		return svc
	}
	t.Cleanup(func() {
		newService = original
		observability.ResetForTest()
	})
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t, nil)
	out, err := execute(t, "", "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "scribe version "+Version)
}

func TestVersionCmd(t *testing.T) {
	resetForTest(t, nil)
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "scribe version "+Version+"\n", out)
}

func TestRootCmd_NoArgs(t *testing.T) {
	resetForTest(t, nil)
	out, err := execute(t, "")
	require.NoError(t, err)
	assert.Contains(t, out, "Scribe publishes chapters")
}

func TestPublishCmd(t *testing.T) {
	svc := &fakeService{result: &publisher.WorkflowResult{
		RunID:         "run-1",
		Success:       true,
		ContentLength: 1200,
		Published:     publisher.StatePublished,
		Verified:      true,
	}}
	resetForTest(t, svc)
	body := writeFile(t, "chapter.txt", strings.Repeat("字", 1200))

	out, err := execute(t, "", "publish", "--title", "第一章", "--body-file", body, "--work-id", "101")
	require.NoError(t, err)

	assert.Equal(t, "第一章", svc.content.Title)
	assert.Equal(t, 1200, len([]rune(svc.content.Body)))
	require.NotNil(t, svc.target)
	assert.Equal(t, "101", svc.target.ID)
	assert.Equal(t, publisher.Credentials{Identity: "writer@example.com", Secret: "env-secret"}, svc.creds)

	var result publisher.WorkflowResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Verified)
	assert.Equal(t, "run-1", result.RunID)
}

func TestPublishCmd_BodyFromStdin(t *testing.T) {
	svc := &fakeService{result: &publisher.WorkflowResult{Success: true}}
	resetForTest(t, svc)

	_, err := execute(t, "from stdin", "publish", "-t", "t", "-f", "-", "--identity", "other@example.com")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", svc.content.Body)
	assert.Nil(t, svc.target)
	assert.Equal(t, "other@example.com", svc.creds.Identity)
	assert.Equal(t, "env-secret", svc.creds.Secret)
}

func TestPublishCmd_FailurePrintsResult(t *testing.T) {
	authErr := &publisher.AuthError{Step: publisher.StepConfirm, Reason: publisher.ReasonPlatformRejected}
	svc := &fakeService{
		result: &publisher.WorkflowResult{Message: authErr.Error()},
		err:    authErr,
	}
	resetForTest(t, svc)
	body := writeFile(t, "chapter.txt", "body")

	out, err := execute(t, "", "publish", "-t", "t", "-f", body)
	require.Error(t, err)
	assert.Equal(t, publisher.KindAuthentication, publisher.KindOf(err))
	assert.Contains(t, out, `"success": false`)
	assert.NotContains(t, out, "env-secret")
}

func TestPublishCmd_RequiredFlags(t *testing.T) {
	resetForTest(t, &fakeService{})
	_, err := execute(t, "", "publish", "--title", "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "body-file")
}

func TestPublishCmd_MissingBodyFile(t *testing.T) {
	resetForTest(t, &fakeService{})
	_, err := execute(t, "", "publish", "-t", "t", "-f", filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open body file")
}

func TestWorksCmd(t *testing.T) {
	svc := &fakeService{works: []publisher.Work{
		{ID: "101", Title: "星河旅人", URL: "https://writer.example.com/writer/works/101"},
		{ID: "202", Title: "无名之书"},
	}}
	resetForTest(t, svc)

	out, err := execute(t, "", "works")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "101")
	assert.Contains(t, lines[1], "星河旅人")

	out, err = execute(t, "", "works", "--json")
	require.NoError(t, err)
	var works []publisher.Work
	require.NoError(t, json.Unmarshal([]byte(out), &works))
	assert.Equal(t, svc.works, works)
}

func TestWorksCmd_Empty(t *testing.T) {
	resetForTest(t, &fakeService{works: []publisher.Work{}})
	out, err := execute(t, "", "works")
	require.NoError(t, err)
	assert.Contains(t, out, "No works found.")
}

func TestConfigFileAndEnvOverride(t *testing.T) {
	svc := &fakeService{works: []publisher.Work{}}
	resetForTest(t, svc)
	t.Setenv("SCRIBE_TIMEOUTS_VERIFY", "42s")

	cfgPath := writeFile(t, "scribe.yaml", `
platform:
  base_url: https://author.example.org
browser:
  mobile: true
timeouts:
  verify: 5s
`)
	_, err := execute(t, "", "--config", cfgPath, "works")
	require.NoError(t, err)

	require.NotNil(t, svc.cfg)
	assert.Equal(t, "https://author.example.org", svc.cfg.Platform().BaseURL)
	assert.True(t, svc.cfg.Browser().Mobile)
	assert.Equal(t, 42*time.Second, svc.cfg.Timeouts().Verify, "env beats the config file")
}

func TestConfigFromHomeDirectory(t *testing.T) {
	svc := &fakeService{works: []publisher.Work{}}
	resetForTest(t, svc)

	home := os.Getenv("HOME")
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".scribe"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".scribe", "config.yaml"),
		[]byte("platform:\n  works_path: /my/books\n"), 0o600))

	_, err := execute(t, "", "works")
	require.NoError(t, err)
	assert.Equal(t, "/my/books", svc.cfg.Platform().WorksPath)
}

func TestInvalidConfig(t *testing.T) {
	resetForTest(t, &fakeService{})
	cfgPath := writeFile(t, "bad.yaml", "server:\n  max_sessions: 0\n")
	_, err := execute(t, "", "--config", cfgPath, "works")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_sessions")
}

func TestConfigFrom_NotLoaded(t *testing.T) {
	_, err := configFrom(context.Background())
	assert.Error(t, err)
}
