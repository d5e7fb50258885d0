package crypto

import (
	"runtime"
	"testing"
)

func TestHasAESHardwareSupport(t *testing.T) {
	// Can't mock CPU features; just assert it doesn't panic and returns a bool.
	_ = HasAESHardwareSupport()
}

func TestIsHardwareAccelerationEnabled(t *testing.T) {
	enabled := HardwareConfig{EnableAESNI: true, EnableARMv8AES: true}
	expect := HasAESHardwareSupport()
	if IsHardwareAccelerationEnabled(enabled) != expect {
		t.Fatalf("enabled config should track HasAESHardwareSupport on known arches")
	}

	if HasAESHardwareSupport() && (runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64") {
		disabled := HardwareConfig{}
		if IsHardwareAccelerationEnabled(disabled) {
			t.Fatalf("disabled config must not report acceleration active")
		}
	}
}

func TestGetHardwareAccelerationInfo(t *testing.T) {
	info := GetHardwareAccelerationInfo(HardwareConfig{EnableAESNI: true, EnableARMv8AES: true})
	if info.Architecture != runtime.GOARCH {
		t.Fatalf("architecture = %q, want %q", info.Architecture, runtime.GOARCH)
	}
	if info.GOOS != runtime.GOOS {
		t.Fatalf("goos = %q, want %q", info.GOOS, runtime.GOOS)
	}
}
