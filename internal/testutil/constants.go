package testutil

// Test encryption keys for use in tests only: 32 raw bytes and the
// 64-hex-character form.
const (
	TestEncryptionKey    = "12345678901234567890123456789012"
	TestEncryptionKeyHex = "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"
)
