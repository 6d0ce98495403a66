package constants

import (
	"reflect"
	"testing"
)

func TestConfigPath(t *testing.T) {
	tests := []struct {
		name      string
		configDir string
		expected  string
	}{
		{"xdg dir", "/home/me/.config", "/home/me/.config/shellwire/config.yaml"},
		{"relative dir", "cfg", "cfg/shellwire/config.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConfigPath(tt.configDir)
			if got != tt.expected {
				t.Errorf("ConfigPath(%q) = %q, want %q", tt.configDir, got, tt.expected)
			}
		})
	}
}

func TestDefaultLocalShell(t *testing.T) {
	tests := []struct {
		dialect  string
		expected []string
	}{
		{"", []string{"bash"}},
		{DialectPosix, []string{"bash"}},
		{DialectPowerShell, []string{"powershell", "-NoLogo", "-NoProfile", "-Command", "-"}},
	}

	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			got := DefaultLocalShell(tt.dialect)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("DefaultLocalShell(%q) = %v, want %v", tt.dialect, got, tt.expected)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	if DefaultChunkSize <= 0 || DefaultStderrSize <= 0 {
		t.Error("stream buffer sizes must be positive")
	}
	if DefaultInitialDelay > DefaultMaxDelay {
		t.Errorf("initial delay %v exceeds max delay %v", DefaultInitialDelay, DefaultMaxDelay)
	}
	if MissingFileCode != 23 {
		t.Errorf("MissingFileCode = %d, want 23", MissingFileCode)
	}
}
