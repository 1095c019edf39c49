package models

// Encryption parameters for the local cache (AES-256-GCM with PBKDF2 key
// derivation).
const (
	KeySize    = 32
	NonceSize  = 12
	Iterations = 100000
)
