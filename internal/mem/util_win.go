//go:build windows
// +build windows

package mem

func lockMemoryPlatform() (ProtectionLevel, error) {
	// VirtualLock is available but not wired here; treat as partial protection.
	return ProtectionPartial, nil
}

func unlockMemoryPlatform() error {
	// Nothing to unlock
	return nil
}
