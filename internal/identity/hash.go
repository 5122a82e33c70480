package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Canonical normalizes one identity part for consistent matching.
// Handles: " smith ", "SMITH", "Smith\t" -> "SMITH".
func Canonical(part string) string {
	return strings.ToUpper(strings.Join(strings.Fields(part), " "))
}

// Hash creates a stable identity key from an ordered tuple of parts.
// Order matters and missing values must be passed as "". Every part is
// length-prefixed so ("A|B", "C") and ("A", "B|C") produce different keys.
func Hash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Hasher builds role-specific identity keys with an optional secret salt.
type Hasher struct {
	salt string
}

// NewHasher creates a hasher. An empty salt is allowed; keys are then only
// as secret as the tuples they are derived from.
func NewHasher(salt string) *Hasher {
	return &Hasher{salt: salt}
}

func (h *Hasher) key(role string, parts ...string) string {
	tuple := make([]string, 0, len(parts)+2)
	tuple = append(tuple, role)
	for _, p := range parts {
		tuple = append(tuple, Canonical(p))
	}
	tuple = append(tuple, h.salt)
	return Hash(tuple...)
}

// PatientKey keys a patient by (last, first, dob).
func (h *Hasher) PatientKey(last, first, dob string) string {
	return h.key("patient", last, first, strings.TrimSpace(dob))
}

// PatientIDKey keys a patient whose name is missing or a placeholder by
// the record number instead.
func (h *Hasher) PatientIDKey(mrn string) string {
	return h.key("patient-id", mrn)
}

// OrganizationKey keys an organization by (name, identity). The identity
// string disambiguates same-named organizations; it falls back to the name.
func (h *Hasher) OrganizationKey(name, identity string) string {
	if strings.TrimSpace(identity) == "" {
		identity = name
	}
	return h.key("organization", name, identity)
}

// ProviderKey keys a provider by (last, first).
func (h *Hasher) ProviderKey(last, first string) string {
	return h.key("provider", last, first)
}

// ProviderIDKey keys a provider known only by an identifier.
func (h *Hasher) ProviderIDKey(id string) string {
	return h.key("provider-id", id)
}

// MRNHash hashes a raw MRN for storage next to its fake value.
func (h *Hasher) MRNHash(mrn string) string {
	return h.key("mrn", mrn)
}
