package identity

import (
	"strings"
	"unicode"
)

// PlaceholderNames are values that indicate missing/test data
var PlaceholderNames = map[string]bool{
	"":          true,
	"unknown":   true,
	"unk":       true,
	"no name":   true,
	"noname":    true,
	"anonymous": true,
	"test":      true,
	"patient":   true,
	"null":      true,
	"none":      true,
}

// PlaceholderDOBs are values that indicate missing/test DOB data
var PlaceholderDOBs = map[string]bool{
	"":         true,
	"00000000": true,
	"11111111": true,
	"19000101": true,
	"99999999": true,
}

// IsPlaceholderName reports whether a name part carries no identity.
func IsPlaceholderName(name string) bool {
	return PlaceholderNames[strings.ToLower(strings.Join(strings.Fields(name), " "))]
}

// IsPlaceholderDOB reports whether a birth date is a filler value.
func IsPlaceholderDOB(dob string) bool {
	return PlaceholderDOBs[strings.TrimSpace(dob)]
}

// IsNameCandidate checks whether a name is worth scrubbing from free text:
// at least minLen characters, containing a letter, and not a placeholder.
func IsNameCandidate(name string, minLen int) bool {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < minLen || IsPlaceholderName(name) {
		return false
	}
	for _, r := range name {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
