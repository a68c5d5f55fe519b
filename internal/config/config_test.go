package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestNewConfig verifies that NewConfig returns a Config with all expected default values.
// Changes to defaults must be intentional: these tests fail if a default moves.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default mode is SYN", func(t *testing.T) {
		t.Parallel()
		if cfg.Mode != ModeSYN {
			t.Errorf("expected Mode SYN, got %q", cfg.Mode)
		}
	})

	t.Run("default timeouts", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != time.Second {
			t.Errorf("expected Timeout 1s, got %v", cfg.Timeout)
		}
		if cfg.ServiceTimeout != 2*time.Second {
			t.Errorf("expected ServiceTimeout 2s, got %v", cfg.ServiceTimeout)
		}
	})

	t.Run("detection and handlers are enabled", func(t *testing.T) {
		t.Parallel()
		if !cfg.ServiceDetection || !cfg.ProtocolHandlers {
			t.Error("expected service detection and protocol handlers to be enabled")
		}
	})

	t.Run("scan is sequential without jitter", func(t *testing.T) {
		t.Parallel()
		if cfg.Workers != 1 {
			t.Errorf("expected 1 worker, got %d", cfg.Workers)
		}
		if cfg.JitterMin != 0 || cfg.JitterMax != 0 {
			t.Error("expected no jitter by default")
		}
	})

	t.Run("console shows all ports as text logs", func(t *testing.T) {
		t.Parallel()
		if cfg.ConsoleOutput != OutputAll {
			t.Errorf("expected ConsoleOutput all, got %q", cfg.ConsoleOutput)
		}
		if cfg.LogFormat != LogFormatText {
			t.Errorf("expected text logs, got %q", cfg.LogFormat)
		}
	})
}

// TestConfigValidate tests the Validate method with various configurations.
// Each test case is designed to test one specific validation rule.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.TargetIP = "192.168.0.10"
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr error
	}{
		{"valid config returns nil", func(_ *Config) {}, nil},
		{"ipv6 target", func(c *Config) { c.TargetIP = "fe80::1" }, nil},
		{"missing target", func(c *Config) { c.TargetIP = "" }, ErrNoTarget},
		{"hostname target", func(c *Config) { c.TargetIP = "example.com" }, ErrInvalidIP},
		{"empty ports", func(c *Config) { c.Ports = " " }, ErrNoPorts},
		{"unknown mode", func(c *Config) { c.Mode = "XMAS" }, ErrInvalidMode},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"zero service timeout", func(c *Config) { c.ServiceTimeout = 0 }, ErrInvalidServiceTimeout},
		{"negative jitter", func(c *Config) { c.JitterMin = -time.Millisecond }, ErrInvalidJitter},
		{"inverted jitter", func(c *Config) {
			c.JitterMin = 300 * time.Millisecond
			c.JitterMax = 100 * time.Millisecond
		}, ErrInvalidJitterRange},
		{"zero workers", func(c *Config) { c.Workers = 0 }, ErrInvalidWorkers},
		{"too many workers", func(c *Config) { c.Workers = MaxWorkers + 1 }, ErrInvalidWorkers},
		{"unknown console filter", func(c *Config) { c.ConsoleOutput = "closed_only" }, ErrInvalidConsoleOutput},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }, ErrInvalidLogFormat},
		{"proxy without port", func(c *Config) { c.ProxyAddress = "127.0.0.1" }, ErrInvalidProxy},
		{"valid proxy", func(c *Config) { c.ProxyAddress = "127.0.0.1:9050" }, nil},
		{"conflicting report formats", func(c *Config) {
			c.JSONReport = true
			c.MarkdownReport = true
		}, ErrConflictingReportFormats},
		{"report file without format", func(c *Config) { c.ReportFile = "out.json" }, ErrReportFileWithoutFormat},
		{"report file with format", func(c *Config) {
			c.ReportFile = "out.md"
			c.MarkdownReport = true
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseScanMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ScanMode
		wantErr bool
	}{
		{"SYN", ModeSYN, false},
		{"connect", ModeConnect, false},
		{" Connect ", ModeConnect, false},
		{"FIN", ModeSYN, true},
		{"", ModeSYN, true},
	}
	for _, tt := range tests {
		got, err := ParseScanMode(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseScanMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestParseConsoleOutput(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]ConsoleOutput{
		"all":       OutputAll,
		"OPEN_ONLY": OutputOpenOnly,
		"none":      OutputNone,
	} {
		got, err := ParseConsoleOutput(in)
		if err != nil || got != want {
			t.Errorf("ParseConsoleOutput(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseConsoleOutput("verbose"); !errors.Is(err, ErrInvalidConsoleOutput) {
		t.Errorf("expected ErrInvalidConsoleOutput, got %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portscout.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("full document", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, `
target:
  ip: 10.0.0.5
  ports: "20-25,53,80"
scan_options:
  timeout: 0.5
  mode: CONNECT
  randomize_order: true
  timing_jitter:
    min: 0.1
    max: 0.3
advanced:
  service_detection: false
  protocol_handlers: false
  workers: 8
  proxy: 127.0.0.1:9050
logging:
  console_output: open_only
  verbose: true
  format: json
`)
		cf, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cfg := NewConfig()
		cf.Apply(cfg, nil)

		if cfg.TargetIP != "10.0.0.5" || cfg.Ports != "20-25,53,80" {
			t.Errorf("target = %q %q", cfg.TargetIP, cfg.Ports)
		}
		if cfg.Mode != ModeConnect || cfg.Timeout != 500*time.Millisecond || !cfg.RandomizeOrder {
			t.Errorf("scan options = %q %v %v", cfg.Mode, cfg.Timeout, cfg.RandomizeOrder)
		}
		if cfg.JitterMin != 100*time.Millisecond || cfg.JitterMax != 300*time.Millisecond {
			t.Errorf("jitter = %v..%v", cfg.JitterMin, cfg.JitterMax)
		}
		if cfg.ServiceDetection || cfg.ProtocolHandlers || cfg.Workers != 8 || cfg.ProxyAddress != "127.0.0.1:9050" {
			t.Errorf("advanced = %+v", cfg)
		}
		if cfg.ConsoleOutput != OutputOpenOnly || !cfg.Verbose || cfg.LogFormat != LogFormatJSON {
			t.Errorf("logging = %q %v %q", cfg.ConsoleOutput, cfg.Verbose, cfg.LogFormat)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("loaded config should validate: %v", err)
		}
	})

	t.Run("ports as number and list", func(t *testing.T) {
		t.Parallel()

		cf, err := LoadConfigFile(writeConfig(t, "target:\n  ports: 443\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cf.Target.Ports != "443" {
			t.Errorf("ports = %q", cf.Target.Ports)
		}

		cf, err = LoadConfigFile(writeConfig(t, "target:\n  ports: [22, \"80-81\"]\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cf.Target.Ports != "22,80-81" {
			t.Errorf("ports = %q", cf.Target.Ports)
		}
	})

	t.Run("unknown key is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(writeConfig(t, "scan_options:\n  timout: 1\n"))
		if !errors.Is(err, ErrInvalidConfigFile) {
			t.Errorf("expected ErrInvalidConfigFile, got %v", err)
		}
	})

	t.Run("non numeric timeout is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(writeConfig(t, "scan_options:\n  timeout: fast\n"))
		if !errors.Is(err, ErrInvalidConfigFile) {
			t.Errorf("expected ErrInvalidConfigFile, got %v", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()

		if _, err := LoadConfigFile(writeConfig(t, "")); err != nil {
			t.Errorf("empty file should load, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

func TestFileApply(t *testing.T) {
	t.Parallel()

	t.Run("unknown mode falls back to SYN with a warning", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		cfg := NewConfig()
		cfg.Mode = ModeConnect
		f := &File{ScanOptions: ScanOptionsSection{Mode: "STEALTH"}}
		f.Apply(cfg, logger)

		if cfg.Mode != ModeSYN {
			t.Errorf("expected SYN fallback, got %q", cfg.Mode)
		}
		if !strings.Contains(buf.String(), "STEALTH") {
			t.Errorf("expected warning naming the mode, got %q", buf.String())
		}
	})

	t.Run("missing mode falls back to SYN with a warning", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cfg := NewConfig()
		(&File{}).Apply(cfg, slog.New(slog.NewTextHandler(&buf, nil)))

		if cfg.Mode != ModeSYN {
			t.Errorf("expected SYN, got %q", cfg.Mode)
		}
		if !strings.Contains(buf.String(), "WARN") {
			t.Errorf("expected a warning, got %q", buf.String())
		}
	})

	t.Run("absent values keep existing settings", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.TargetIP = "10.1.1.1"
		cfg.Workers = 4
		f := &File{ScanOptions: ScanOptionsSection{Mode: "SYN"}}
		f.Apply(cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

		if cfg.TargetIP != "10.1.1.1" || cfg.Workers != 4 || cfg.Timeout != DefaultTimeout {
			t.Errorf("Apply overwrote unset values: %+v", cfg)
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("explicit path that exists", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "target:\n  ip: 10.0.0.1\n")
		if got := FindConfigFile(path); got != path {
			t.Errorf("expected %q, got %q", path, got)
		}
	})

	t.Run("explicit path that does not exist", func(t *testing.T) {
		t.Parallel()

		if got := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); got != "" {
			t.Errorf("expected empty path, got %q", got)
		}
	})
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{
		"data":   XDGDataDir(),
		"config": XDGConfigDir(),
	} {
		if filepath.Base(dir) != AppName {
			t.Errorf("%s dir %q should end in %q", name, dir, AppName)
		}
	}
	if filepath.Dir(DefaultConfigPath()) != XDGConfigDir() {
		t.Errorf("DefaultConfigPath() = %q", DefaultConfigPath())
	}
}

func TestSecondsDuration(t *testing.T) {
	t.Parallel()

	if got := Seconds(1.5).Duration(); got != 1500*time.Millisecond {
		t.Errorf("Seconds(1.5) = %v", got)
	}
}
