package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "solr-backups.yaml", "solr:\n  host: solr1\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Solr.Host != "solr1" {
		t.Fatalf("unexpected host: %s", cfg.Solr.Host)
	}
	if cfg.Global.Mode != ModeBackup {
		t.Fatalf("unexpected mode: %s", cfg.Global.Mode)
	}
	if cfg.Backup.RetryCount != 5 {
		t.Fatalf("unexpected retry count: %d", cfg.Backup.RetryCount)
	}
	if cfg.Backup.RetryBackoff != time.Second {
		t.Fatalf("unexpected backoff: %s", cfg.Backup.RetryBackoff)
	}
	if cfg.Manifest.Dir != "./" {
		t.Fatalf("unexpected manifest dir: %s", cfg.Manifest.Dir)
	}
}

func TestLoadContainerEnv(t *testing.T) {
	t.Setenv("SOLR_HOST", "10.0.0.5:8983")
	t.Setenv("BACKUP_NAME", "nightly")
	t.Setenv("BACKUP_PATH", "/mnt/backups")
	t.Setenv("MANIFEST_DIR", "/var/manifests")
	dir := t.TempDir()
	p := writeFile(t, dir, "empty.yaml", "global:\n  log_level: debug\n")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Solr.Host != "10.0.0.5:8983" || cfg.Backup.Name != "nightly" || cfg.Backup.Path != "/mnt/backups" || cfg.Manifest.Dir != "/var/manifests" {
		t.Fatalf("container env not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestLoadPrefixedEnvList(t *testing.T) {
	t.Setenv("SOLRBU_BACKUP_BLACKLIST", "logs,tmp")
	dir := t.TempDir()
	p := writeFile(t, dir, "c.yaml", "backup:\n  name: n\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(cfg.Backup.Blacklist, ",") != "logs,tmp" {
		t.Fatalf("unexpected blacklist: %v", cfg.Backup.Blacklist)
	}
}

func TestValidateReportsMissingFields(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "c.yaml", "global:\n  mode: sideways\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"mode", "host", "name", "path"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestEncryptedConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	plain := writeFile(t, dir, "c.yaml", "solr:\n  host: secret-host\n  password: hunter2\n")
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	out := filepath.Join(dir, "c.yaml.enc")
	if err := EncryptConfigFile(plain, out, key); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	t.Setenv("SOLRBU_CONFIG_KEY", key)
	cfg, err := Load(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Solr.Host != "secret-host" || cfg.Solr.Password != "hunter2" {
		t.Fatalf("unexpected solr config: %+v", cfg.Solr)
	}
}

func TestEncryptRejectsPlainOutputName(t *testing.T) {
	dir := t.TempDir()
	plain := writeFile(t, dir, "c.yaml", "solr: {}\n")
	if err := EncryptConfigFile(plain, filepath.Join(dir, "out.yaml"), "unused"); err == nil {
		t.Fatalf("expected error for non-.enc output")
	}
}

func TestValidateReadOnlySkipsPath(t *testing.T) {
	cfg := &Config{
		Global: GlobalConfig{Mode: ModeBackup},
		Solr:   SolrConfig{Host: "solr1"},
		Backup: BackupConfig{Name: "nightly", RetryCount: 1, PollInterval: time.Second},
	}
	if err := cfg.ValidateReadOnly(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "path") {
		t.Fatalf("expected missing path error, got %v", err)
	}
}
