package cachego

import (
	"fmt"
	"strings"
)

// BuildCacheKey synthesizes the cache key for a producer from its logical
// name, version string, and request suffix. Pure function, no I/O. Panics
// if any component introduces an invalid character; the producer owns its
// identity and must keep it inside the key charset.
func BuildCacheKey(p Producer) string {
	key := fmt.Sprintf("%s_%s_%s", p.LogicalName(), p.VersionString(), p.KeySuffix())
	mustValidKey(key)
	return key
}

// ValidateCacheKey checks the key against the allowed character set:
// ASCII letters, digits, underscore, and '$'. Keys are case- and byte-exact;
// nothing is escaped or truncated.
func ValidateCacheKey(key string) error {
	if key == "" {
		return &InvalidKeyError{Key: key, Reason: "empty key"}
	}
	for i := 0; i < len(key); i++ {
		if !validKeyByte(key[i]) {
			return &InvalidKeyError{
				Key:    key,
				Reason: fmt.Sprintf("invalid character %q at offset %d", key[i], i),
			}
		}
	}
	return nil
}

func validKeyByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '_' || b == '$':
		return true
	default:
		return false
	}
}

// mustValidKey enforces the key charset at every key-accepting entry point,
// before any backend I/O. A bad key is a programming error in the caller.
func mustValidKey(key string) {
	if err := ValidateCacheKey(key); err != nil {
		panic(err)
	}
}

// SanitizeKeyComponent maps an arbitrary string onto the key charset by
// replacing each run of disallowed bytes with a single underscore. Useful
// for producers deriving their suffix from file paths.
func SanitizeKeyComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastReplaced := false
	for i := 0; i < len(s); i++ {
		if validKeyByte(s[i]) {
			b.WriteByte(s[i])
			lastReplaced = false
			continue
		}
		if !lastReplaced {
			b.WriteByte('_')
			lastReplaced = true
		}
	}
	return b.String()
}
