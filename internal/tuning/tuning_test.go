package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("Defaults invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, "workers: 3\nqueue_size: 9\ncache_enabled: false\nindex_path: /tmp/x.db\n")
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := Defaults()
	if got.Workers != 3 || got.QueueSize != 9 || got.CacheEnabled || got.IndexPath != "/tmp/x.db" {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.CacheShards != d.CacheShards || got.FaultLogDir != d.FaultLogDir {
		t.Fatalf("defaults lost: %+v", got)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	got, err := Load(writeFile(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("got %+v want defaults", got)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":  "wokers: 2\n",
		"zero workers": "workers: 0\n",
		"tiny cache":   "cache_capacity: 2\ncache_shards: 8\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), "tuning.yaml") {
				t.Fatalf("error lacks file context: %v", err)
			}
		})
	}
}
