package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCommitsConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "telegram:\n  token: abc\nstorage:\n  path: ./x.db\nverify:\n  base_url: https://v.example\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get does not return the loaded config")
	}
}

func TestSubscribeDeliversLatestReload(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.yaml")
	ch := m.Subscribe(1)

	first := &Config{}
	second := &Config{}
	m.publish(first)
	m.publish(second) // full buffer: the stale config is dropped

	select {
	case got := <-ch:
		if got != second {
			t.Fatal("subscriber received a stale config")
		}
	default:
		t.Fatal("no config delivered")
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra config buffered: %+v", extra)
	default:
	}
}
