package config

import (
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Name string `split_words:"true"`
	Port int    `split_words:"true" default:"80"`
	Mode string `split_words:"true" default:"dev"`
}

func writeEnvFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Cleanup(func() {
		SetEnvFile("")
		os.Unsetenv("CONFIGX_TEST_NAME")
		os.Unsetenv("CONFIGX_TEST_PORT")
	})
	return path
}

func TestNewReadsEnvFile(t *testing.T) {
	SetEnvFile(writeEnvFile(t, "CONFIGX_TEST_NAME=chronos\nCONFIGX_TEST_PORT=9090\n"))

	conf, err := New[testConfig]("CONFIGX_TEST")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Name != "chronos" || conf.Port != 9090 || conf.Mode != "dev" {
		t.Fatalf("conf = %#v", conf)
	}
}

func TestNewPrefersProcessEnvironment(t *testing.T) {
	path := writeEnvFile(t, "CONFIGX_TEST_NAME=from-file\n")
	t.Setenv("CONFIGX_TEST_NAME", "from-env")
	SetEnvFile(path)

	conf, err := New[testConfig]("CONFIGX_TEST")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Name != "from-env" {
		t.Fatalf("Name = %q, want from-env", conf.Name)
	}
}

func TestNewMissingEnvFile(t *testing.T) {
	SetEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	t.Cleanup(func() { SetEnvFile("") })

	if _, err := New[testConfig]("CONFIGX_TEST"); err == nil {
		t.Fatal("expected error for missing env file")
	}
}
