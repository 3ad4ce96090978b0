package ir

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Hash algorithm names accepted by NewHasher and the "hash" config key.
const (
	HashBlake2b256 = "blake2b-256"
	HashSHA256     = "sha256"
)

// DomainRecord is the separation prefix used by DomainSHA256 for record ids.
// Version suffix enables future algorithm migration.
const DomainRecord = "soulbound/record/v1"

// Hasher derives a RecordID from payload bytes.
// Implementations must be pure: equal inputs always give equal outputs.
type Hasher interface {
	// Name returns the algorithm name recorded in journals and snapshots.
	Name() string

	// Sum returns the 32-byte identifier for data.
	Sum(data []byte) RecordID
}

// Blake2b256 hashes the raw payload with unkeyed BLAKE2b-256.
// This is the default and matches identifiers produced by the chain runtime.
type Blake2b256 struct{}

// Name implements Hasher.
func (Blake2b256) Name() string { return HashBlake2b256 }

// Sum implements Hasher.
func (Blake2b256) Sum(data []byte) RecordID {
	return RecordID(blake2b.Sum256(data))
}

// DomainSHA256 hashes with SHA-256 and domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
type DomainSHA256 struct {
	Domain string
}

// Name implements Hasher.
func (DomainSHA256) Name() string { return HashSHA256 }

// Sum implements Hasher.
func (h DomainSHA256) Sum(data []byte) RecordID {
	return hashWithDomain(h.Domain, data)
}

func hashWithDomain(domain string, data []byte) RecordID {
	s := sha256.New()
	s.Write([]byte(domain))
	s.Write([]byte{0x00})
	s.Write(data)
	var id RecordID
	copy(id[:], s.Sum(nil))
	return id
}

// DefaultHasher returns the hasher used when none is configured.
func DefaultHasher() Hasher {
	return Blake2b256{}
}

// NewHasher resolves a configured algorithm name.
func NewHasher(name string) (Hasher, error) {
	switch name {
	case "", HashBlake2b256:
		return Blake2b256{}, nil
	case HashSHA256:
		return DomainSHA256{Domain: DomainRecord}, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q (want %s or %s)", name, HashBlake2b256, HashSHA256)
	}
}
