package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		LogLevel:     "debug",
		ContentCache: ContentCacheConfig{DefaultTTL: Duration(36 * time.Hour)},
		AssetCache:   AssetCacheConfig{Budget: 256 << 20},
		State:        StateConfig{QueueDepth: 64},
		Secrets:      SecretsConfig{SealBackendContext: false},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(buf.String(), `budget = "256 MiB"`) {
		t.Errorf("encoded config missing humanized budget:\n%s", buf.String())
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if *got != *original {
		t.Errorf("Read() = %+v, want %+v", *got, *original)
	}
}

func TestManager_ReadKeepsDefaults(t *testing.T) {
	m := &Manager{}
	got, err := m.Read(strings.NewReader(`
log_level = "warn"

[asset_cache]
budget = "2GB"
`))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want %q", got.LogLevel, "warn")
	}
	if got.AssetCache.Budget != 2_000_000_000 {
		t.Errorf("AssetCache.Budget = %d, want %d", got.AssetCache.Budget, 2_000_000_000)
	}
	if got.ContentCache.DefaultTTL != Duration(168*time.Hour) {
		t.Errorf("ContentCache.DefaultTTL = %s, want 168h", got.ContentCache.DefaultTTL)
	}
	if got.State.QueueDepth != 500 {
		t.Errorf("State.QueueDepth = %d, want 500", got.State.QueueDepth)
	}
	if !got.Secrets.SealBackendContext {
		t.Error("Secrets.SealBackendContext = false, want default true")
	}
}

func TestManager_ReadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "bad duration", input: "[content_cache]\ndefault_ttl = \"a week\"\n"},
		{name: "bad size", input: "[asset_cache]\nbudget = \"lots\"\n"},
		{name: "not toml", input: "log_level = \n"},
	}

	m := &Manager{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Read(strings.NewReader(tt.input)); err == nil {
				t.Error("Read() expected error")
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.AssetCache.Budget.String() != "512 MiB" {
		t.Errorf("AssetCache.Budget = %s, want 512 MiB", cfg.AssetCache.Budget)
	}
	if time.Duration(cfg.ContentCache.DefaultTTL) != 7*24*time.Hour {
		t.Errorf("ContentCache.DefaultTTL = %s, want 7 days", cfg.ContentCache.DefaultTTL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "upper case level", mutate: func(c *Config) { c.LogLevel = "DEBUG" }},
		{name: "unknown level", mutate: func(c *Config) { c.LogLevel = "verbose" }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.ContentCache.DefaultTTL = 0 }, wantErr: true},
		{name: "zero queue", mutate: func(c *Config) { c.State.QueueDepth = 0 }, wantErr: true},
		{name: "zero budget", mutate: func(c *Config) { c.AssetCache.Budget = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config", "bluebottle.toml")

		if err := Init(path, Default()); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bluebottle.toml")

		if err := Init(path, Default()); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, Default())
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bluebottle.toml")
		cfg := Default()
		cfg.State.QueueDepth = 42

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.State.QueueDepth != 42 {
			t.Errorf("State.QueueDepth = %d, want 42", got.State.QueueDepth)
		}
	})

	t.Run("missing file yields defaults", func(t *testing.T) {
		got, err := ReadFromFile("/nonexistent/path/bluebottle.toml")
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if *got != *Default() {
			t.Errorf("ReadFromFile() = %+v, want defaults", *got)
		}
	})

	t.Run("unreadable path is an error", func(t *testing.T) {
		if _, err := ReadFromFile(t.TempDir()); err == nil {
			t.Fatal("ReadFromFile() expected error for a directory")
		}
	})
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("BLUEBOTTLE_HOME", "/srv/bluebottle")
	t.Setenv("BLUEBOTTLE_CONFIG_PATH", "/etc/bluebottle.toml")
	t.Setenv("BLUEBOTTLE_LOG_LEVEL", "error")

	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	want := Env{Home: "/srv/bluebottle", ConfigPath: "/etc/bluebottle.toml", LogLevel: "error"}
	if e != want {
		t.Errorf("LoadEnv() = %+v, want %+v", e, want)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bluebottle.toml")
	if err := os.WriteFile(path, []byte("log_level = \"debug\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("env overrides file", func(t *testing.T) {
		cfg, err := Load(path, Env{LogLevel: "warn"})
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.LogLevel != "warn" {
			t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "warn")
		}
	})

	t.Run("invalid override fails validation", func(t *testing.T) {
		if _, err := Load(path, Env{LogLevel: "loud"}); err == nil {
			t.Fatal("Load() expected validation error")
		}
	})
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    ByteSize
		wantErr bool
	}{
		{in: "256MiB", want: 256 << 20},
		{in: "512 MiB", want: 512 << 20},
		{in: "1GB", want: 1_000_000_000},
		{in: "14", want: 14},
		{in: "huge", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseByteSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseByteSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
