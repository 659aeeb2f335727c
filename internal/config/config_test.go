package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFindEnvLocal_InCurrentDir(t *testing.T) {
	// Create temp directory structure
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env.local")
	if err := os.WriteFile(envPath, []byte("TEST=value"), 0644); err != nil {
		t.Fatal(err)
	}

	// Change to temp dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	if result == "" {
		t.Error("expected to find .env.local in current directory")
	}
}

func TestFindEnvLocal_InParentDir(t *testing.T) {
	// Create temp directory structure: parent/.env.local, parent/child/
	tmpDir := t.TempDir()
	childDir := filepath.Join(tmpDir, "child")
	if err := os.Mkdir(childDir, 0755); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(tmpDir, ".env.local")
	if err := os.WriteFile(envPath, []byte("TEST=parent"), 0644); err != nil {
		t.Fatal(err)
	}

	// Change to child dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(childDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	if result == "" {
		t.Error("expected to find .env.local in parent directory")
	}
	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedResolved, _ := filepath.EvalSymlinks(envPath)
	resultResolved, _ := filepath.EvalSymlinks(result)
	if resultResolved != expectedResolved {
		t.Errorf("expected %s, got %s", expectedResolved, resultResolved)
	}
}

func TestFindEnvLocal_InGrandparentDir(t *testing.T) {
	// Create: grandparent/.env.local, grandparent/parent/child/
	tmpDir := t.TempDir()
	parentDir := filepath.Join(tmpDir, "parent")
	childDir := filepath.Join(parentDir, "child")
	if err := os.MkdirAll(childDir, 0755); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(tmpDir, ".env.local")
	if err := os.WriteFile(envPath, []byte("TEST=grandparent"), 0644); err != nil {
		t.Fatal(err)
	}

	// Change to grandchild dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(childDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	if result == "" {
		t.Error("expected to find .env.local in grandparent directory")
	}
	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedResolved, _ := filepath.EvalSymlinks(envPath)
	resultResolved, _ := filepath.EvalSymlinks(result)
	if resultResolved != expectedResolved {
		t.Errorf("expected %s, got %s", expectedResolved, resultResolved)
	}
}

func TestFindEnvLocal_ClosestWins(t *testing.T) {
	// Create: grandparent/.env.local, grandparent/parent/.env.local, grandparent/parent/child/
	tmpDir := t.TempDir()
	parentDir := filepath.Join(tmpDir, "parent")
	childDir := filepath.Join(parentDir, "child")
	if err := os.MkdirAll(childDir, 0755); err != nil {
		t.Fatal(err)
	}

	// Create .env.local in both grandparent and parent
	if err := os.WriteFile(filepath.Join(tmpDir, ".env.local"), []byte("TEST=grandparent"), 0644); err != nil {
		t.Fatal(err)
	}
	parentEnvPath := filepath.Join(parentDir, ".env.local")
	if err := os.WriteFile(parentEnvPath, []byte("TEST=parent"), 0644); err != nil {
		t.Fatal(err)
	}

	// Change to child dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(childDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedResolved, _ := filepath.EvalSymlinks(parentEnvPath)
	resultResolved, _ := filepath.EvalSymlinks(result)
	if resultResolved != expectedResolved {
		t.Errorf("expected closest .env.local (%s), got %s", expectedResolved, resultResolved)
	}
}

func TestFindEnvLocal_NotFound(t *testing.T) {
	// Create temp directory with no .env.local
	tmpDir := t.TempDir()

	// Change to temp dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	if result != "" {
		t.Errorf("expected empty string when no .env.local found, got %s", result)
	}
}

// isolate points HOME at an empty directory and clears MBSNAP_* variables so
// a developer's own configuration cannot leak into the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, "MBSNAP_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
	oldCwd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(oldCwd) })
	if err := os.Chdir(home); err != nil {
		t.Fatal(err)
	}
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %s, want %s", cfg.Timeout, DefaultTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if want := filepath.Join(home, ".local", "share", "mbsnap", "state.db"); cfg.StatePath != want {
		t.Errorf("StatePath = %q, want %q", cfg.StatePath, want)
	}
	if cfg.PersonalCollectionMarker != "personal collection" {
		t.Errorf("unexpected marker %q", cfg.PersonalCollectionMarker)
	}
}

func TestLoad_Precedence(t *testing.T) {
	home := isolate(t)

	yamlDir := filepath.Join(home, ".config", "mbsnap")
	if err := os.MkdirAll(yamlDir, 0755); err != nil {
		t.Fatal(err)
	}
	yamlBody := `url: https://yaml.example.com
username: yaml-user
timeout: 30s
database_mapping:
  2: 7
  3: 8
ignored_databases: [4]
`
	if err := os.WriteFile(filepath.Join(yamlDir, "config.yaml"), []byte(yamlBody), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, ".env.local"), []byte("MBSNAP_USERNAME=dotenv-user\n"), 0644); err != nil {
		t.Fatal(err)
	}
	secret := filepath.Join(home, "password.txt")
	if err := os.WriteFile(secret, []byte("from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MBSNAP_PASSWORD_FILE", secret)
	t.Setenv("MBSNAP_TIMEOUT", "45")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.URL != "https://yaml.example.com" {
		t.Errorf("URL = %q, want value from yaml", cfg.URL)
	}
	if cfg.Username != "dotenv-user" {
		t.Errorf("Username = %q, .env.local should override yaml", cfg.Username)
	}
	if cfg.Password != "from-file" {
		t.Errorf("Password = %q, want contents of the _FILE variant", cfg.Password)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %s, env should override yaml", cfg.Timeout)
	}
	if cfg.DatabaseMapping[2] != 7 || cfg.DatabaseMapping[3] != 8 {
		t.Errorf("DatabaseMapping = %v", cfg.DatabaseMapping)
	}
	if len(cfg.IgnoredDatabases) != 1 || cfg.IgnoredDatabases[0] != 4 {
		t.Errorf("IgnoredDatabases = %v", cfg.IgnoredDatabases)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	isolate(t)
	t.Setenv("MBSNAP_DATABASE_MAPPING", "2:7")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "MBSNAP_DATABASE_MAPPING") {
		t.Fatalf("expected mapping error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{URL: "ftp://mb", Timeout: DefaultTimeout}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"http or https", "username is required", "password is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}

	ok := &Config{URL: "https://mb.example.com", Username: "u", Password: "p", Timeout: time.Second}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseDatabaseMapping(t *testing.T) {
	m, err := ParseDatabaseMapping([]string{"2=7", " 3 = 8 ", ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m) != 2 || m[2] != 7 || m[3] != 8 {
		t.Errorf("got %v", m)
	}

	for _, bad := range [][]string{{"2"}, {"a=1"}, {"2=7", "2=9"}} {
		if _, err := ParseDatabaseMapping(bad); err == nil {
			t.Errorf("expected error for %v", bad)
		}
	}
}

func TestCommandNames(t *testing.T) {
	cmds := map[string]Command{
		"export":         ExportCommand{},
		"import":         ImportCommand{},
		"test-questions": TestQuestionsCommand{},
		"delete":         DeleteCommand{},
	}
	for want, cmd := range cmds {
		if got := Name(cmd); got != want {
			t.Errorf("Name(%T) = %q, want %q", cmd, got, want)
		}
	}
}
