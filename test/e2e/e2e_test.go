package e2e

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

var binaryPath string

// TestMain builds the binary before running tests
func TestMain(m *testing.M) {
	binaryName := "autodeploy"
	if runtime.GOOS == "windows" {
		binaryName += ".exe"
	}

	cmd := exec.Command("go", "build", "-o", binaryName, "../../cmd/autodeploy")
	if out, err := cmd.CombinedOutput(); err != nil {
		panic("failed to build binary: " + err.Error() + "\n" + string(out))
	}

	binaryPath, _ = filepath.Abs(binaryName)

	code := m.Run()

	_ = os.Remove(binaryName)

	os.Exit(code)
}

const registryXML = `<?xml version="1.0" encoding="UTF-8"?>
<DeploymentRegistry>
  <PublishedDeployment>
    <FileHost>
      <HostType>FileServer</HostType>
    </FileHost>
    <ManifestUri>pricing/deployment.yaml</ManifestUri>
  </PublishedDeployment>
</DeploymentRegistry>
`

const deploymentYAML = `description:
  manufacturer: Acme
  product: Pricing
settings:
  deployment_basis: PerUser
  update_behavior:
    mode: Optional
artifact_uri: artifact.xml
`

const artifactXML = `<?xml version="1.0" encoding="UTF-8"?>
<AddIn>
  <Identity>
    <Name>Pricing</Name>
    <Version>{version}</Version>
    <FileExtension>xll</FileExtension>
  </Identity>
  <Uri>bin/Pricing.xll</Uri>
  <AssetFiles>
    <AssetFile>
      <Name>rates.csv</Name>
      <Uri>data/rates.csv</Uri>
    </AssetFile>
  </AssetFiles>
</AddIn>
`

// testEnv is a file share with one published deployment and an agent config.
type testEnv struct {
	share  string
	root   string
	config string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	base := t.TempDir()
	env := &testEnv{
		share:  filepath.Join(base, "share"),
		root:   filepath.Join(base, "home"),
		config: filepath.Join(base, "autodeploy.yaml"),
	}

	env.write(t, "registry.xml", registryXML)
	env.write(t, "pricing/deployment.yaml", deploymentYAML)
	env.publish(t, "1.0")

	cfg := strings.Join([]string{
		"registry: " + filepath.Join(env.share, "registry.xml"),
		"log:",
		"  level: error",
		"notify:",
		"  mode: accept",
		"roots:",
		"  per_user: " + env.root,
		"  per_machine: " + filepath.Join(base, "machine"),
		"",
	}, "\n")
	if err := os.WriteFile(env.config, []byte(cfg), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return env
}

func (e *testEnv) write(t *testing.T, name, content string) {
	t.Helper()
	path := filepath.Join(e.share, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

// publish puts version on the share.
func (e *testEnv) publish(t *testing.T, version string) {
	t.Helper()
	e.write(t, "pricing/artifact.xml", strings.ReplaceAll(artifactXML, "{version}", version))
	e.write(t, "pricing/bin/Pricing.xll", "pricing "+version)
	e.write(t, "pricing/data/rates.csv", "rate,"+version)
}

func (e *testEnv) parent() string {
	return filepath.Join(e.root, "Acme", "Pricing")
}

// runAutodeploy executes the binary with the test config.
func runAutodeploy(t *testing.T, env *testEnv, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, append([]string{"--config", env.config}, args...)...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

type checkOutput struct {
	Payloads []struct {
		Artifact  string `json:"artifact"`
		Action    string `json:"action"`
		Deployed  string `json:"deployed_version"`
		Available string `json:"available_version"`
	} `json:"payloads"`
	Errors []string `json:"errors"`
}

func check(t *testing.T, env *testEnv) checkOutput {
	t.Helper()
	stdout, stderr, err := runAutodeploy(t, env, "check", "-o", "json")
	if err != nil {
		t.Fatalf("check failed: %v\nstderr: %s", err, stderr)
	}
	var out checkOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("check output is not JSON: %v\n%s", err, stdout)
	}
	if len(out.Payloads) != 1 {
		t.Fatalf("check returned %d payloads, want 1", len(out.Payloads))
	}
	return out
}

type runOutput struct {
	Installed  int `json:"installed"`
	Updated    int `json:"updated"`
	Failed     int `json:"failed"`
	Operations []struct {
		Artifact string `json:"artifact"`
		Action   string `json:"action"`
		Success  bool   `json:"success"`
		Error    string `json:"error"`
	} `json:"operations"`
}

func runOnce(t *testing.T, env *testEnv) runOutput {
	t.Helper()
	stdout, stderr, err := runAutodeploy(t, env, "run", "--once", "-o", "json")
	if err != nil {
		t.Fatalf("run --once failed: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}
	var out runOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("run output is not JSON: %v\n%s", err, stdout)
	}
	return out
}

func TestVersion(t *testing.T) {
	cmd := exec.Command(binaryPath, "version")
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(string(out), "autodeploy version dev") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestCheck_FirstInstall(t *testing.T) {
	env := setupTestEnv(t)

	out := check(t, env)
	if out.Payloads[0].Action != "install" {
		t.Errorf("action = %s, want install", out.Payloads[0].Action)
	}
	if out.Payloads[0].Available != "1.0" {
		t.Errorf("available = %s, want 1.0", out.Payloads[0].Available)
	}

	_, _, err := runAutodeploy(t, env, "check", "--exit-code")
	if err == nil {
		t.Errorf("check --exit-code should fail while an install is pending")
	}
}

func TestRunOnce_InstallThenUpdate(t *testing.T) {
	env := setupTestEnv(t)

	first := runOnce(t, env)
	if first.Installed != 1 || first.Failed != 0 {
		t.Fatalf("first pass = %+v, want one install", first)
	}

	artifact := filepath.Join(env.parent(), "Pricing.xll")
	content, err := os.ReadFile(artifact)
	if err != nil {
		t.Fatalf("artifact not deployed: %v", err)
	}
	if string(content) != "pricing 1.0" {
		t.Errorf("artifact content = %q, want %q", content, "pricing 1.0")
	}
	if _, err := os.Stat(filepath.Join(env.parent(), "1.0", "rates.csv")); err != nil {
		t.Errorf("asset file not in working directory: %v", err)
	}

	if out := check(t, env); out.Payloads[0].Action != "none" {
		t.Errorf("action after install = %s, want none", out.Payloads[0].Action)
	}
	if _, stderr, err := runAutodeploy(t, env, "check", "--exit-code"); err != nil {
		t.Errorf("check --exit-code should pass when up to date: %v\n%s", err, stderr)
	}

	env.publish(t, "2.0")
	if out := check(t, env); out.Payloads[0].Action != "update" {
		t.Errorf("action after publish = %s, want update", out.Payloads[0].Action)
	}

	second := runOnce(t, env)
	if second.Updated != 1 || second.Failed != 0 {
		t.Fatalf("second pass = %+v, want one update", second)
	}
	content, _ = os.ReadFile(artifact)
	if string(content) != "pricing 2.0" {
		t.Errorf("artifact content = %q, want %q", content, "pricing 2.0")
	}
	if _, err := os.Stat(filepath.Join(env.parent(), "Temp")); !os.IsNotExist(err) {
		t.Errorf("temp directory should be gone after a successful update")
	}
}

func TestStatus(t *testing.T) {
	env := setupTestEnv(t)
	runOnce(t, env)

	stdout, stderr, err := runAutodeploy(t, env, "status", "-o", "yaml")
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, stderr)
	}

	var report []struct {
		Title     string `yaml:"title"`
		Installed bool   `yaml:"installed"`
		Deployed  string `yaml:"deployed_version"`
		Info      *struct {
			AvailableVersion string `yaml:"available_version"`
		} `yaml:"update_query_info"`
	}
	if err := yaml.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("status output is not YAML: %v\n%s", err, stdout)
	}
	if len(report) != 1 {
		t.Fatalf("status returned %d entries, want 1", len(report))
	}
	if !report[0].Installed || report[0].Deployed != "1.0" {
		t.Errorf("status = %+v, want installed 1.0", report[0])
	}
	if report[0].Info == nil || report[0].Info.AvailableVersion != "1.0" {
		t.Errorf("status should include the persisted update record: %+v", report[0].Info)
	}

	stdout, _, err = runAutodeploy(t, env, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(stdout, "Pricing") {
		t.Errorf("text status should name the artifact:\n%s", stdout)
	}
}

func TestPrune(t *testing.T) {
	env := setupTestEnv(t)
	runOnce(t, env)
	env.publish(t, "2.0")
	runOnce(t, env)

	if _, err := os.Stat(filepath.Join(env.parent(), "1.0")); err != nil {
		t.Fatalf("old working directory should be kept until pruned: %v", err)
	}

	stdout, stderr, err := runAutodeploy(t, env, "prune", "--keep", "1")
	if err != nil {
		t.Fatalf("prune failed: %v\n%s", err, stderr)
	}
	if !strings.Contains(stdout, "removed 1") {
		t.Errorf("unexpected prune output:\n%s", stdout)
	}
	if _, err := os.Stat(filepath.Join(env.parent(), "1.0")); !os.IsNotExist(err) {
		t.Errorf("1.0 working directory should be pruned")
	}
	if _, err := os.Stat(filepath.Join(env.parent(), "2.0")); err != nil {
		t.Errorf("deployed working directory must survive prune: %v", err)
	}
}

func TestRegistryUnavailable(t *testing.T) {
	env := setupTestEnv(t)
	if err := os.Remove(filepath.Join(env.share, "registry.xml")); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := runAutodeploy(t, env, "run", "--once")
	if err == nil {
		t.Fatal("run should fail when the registry is missing")
	}
	if !strings.Contains(stderr, "registry") {
		t.Errorf("error should mention the registry: %s", stderr)
	}
}

func TestInvalidConfig(t *testing.T) {
	env := setupTestEnv(t)
	if err := os.WriteFile(env.config, []byte("registry: /srv\nplugins: []\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := runAutodeploy(t, env, "check")
	if err == nil {
		t.Fatal("check should reject an unknown config field")
	}
	if !strings.Contains(stderr, "plugins") {
		t.Errorf("error should name the unknown field: %s", stderr)
	}
}
