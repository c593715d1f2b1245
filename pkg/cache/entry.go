package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Entry is a single cached translation. Each tier owns its entries
// exclusively; promotion between tiers copies the entry, it is never shared
// by reference.
type Entry struct {
	// Value is the cached translation.
	Value string `json:"value"`

	// InsertedAt is when the entry was first stored.
	InsertedAt time.Time `json:"inserted_at"`

	// ExpiresAt is when the entry stops being served. An entry is never
	// returned past this instant.
	ExpiresAt time.Time `json:"expires_at"`

	// AccessCount is the number of lookups that returned this entry.
	AccessCount int64 `json:"access_count"`

	// LastAccessedAt is when the entry was last returned by a lookup.
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Expired reports whether the entry has passed its expiry at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// clone returns a copy of the entry for promotion into another tier.
func (e *Entry) clone() *Entry {
	copied := *e
	return &copied
}

// encodeEntry serializes an entry for the persisted tier.
func encodeEntry(e *Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return data, nil
}

// decodeEntry deserializes an entry from the persisted tier.
func decodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return &e, nil
}

// Key builds the canonical cache key for a word in a target language.
// Normalization is lowercase plus surrounding-whitespace trim, applied to
// both parts.
func Key(language, word string) string {
	return normalize(language) + ":" + normalize(word)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
