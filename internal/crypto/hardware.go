package crypto

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// HardwareConfig toggles whether detected CPU acceleration should actually
// be reported as active, per architecture.
type HardwareConfig struct {
	EnableAESNI    bool
	EnableARMv8AES bool
}

// HasAESHardwareSupport reports whether the running CPU has AES
// instructions, independent of configuration.
func HasAESHardwareSupport() bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return cpu.X86.HasAES
	case "arm64":
		return cpu.ARM64.HasAES
	case "s390x":
		return cpu.S390X.HasAES
	default:
		return false
	}
}

// IsHardwareAccelerationEnabled reports whether hardware acceleration is
// both supported by the CPU and enabled by configuration.
func IsHardwareAccelerationEnabled(cfg HardwareConfig) bool {
	if !HasAESHardwareSupport() {
		return false
	}

	switch runtime.GOARCH {
	case "amd64", "386":
		return cfg.EnableAESNI
	case "arm64":
		return cfg.EnableARMv8AES
	default:
		return true
	}
}

// AccelerationInfo summarizes hardware acceleration status for metrics and
// the /debug ops endpoint.
type AccelerationInfo struct {
	AESHardwareSupport bool
	Architecture       string
	GOOS               string
	GoVersion          string
	Active             bool
}

// GetHardwareAccelerationInfo reports the current acceleration status.
func GetHardwareAccelerationInfo(cfg HardwareConfig) AccelerationInfo {
	return AccelerationInfo{
		AESHardwareSupport: HasAESHardwareSupport(),
		Architecture:       runtime.GOARCH,
		GOOS:               runtime.GOOS,
		GoVersion:          runtime.Version(),
		Active:             IsHardwareAccelerationEnabled(cfg),
	}
}
