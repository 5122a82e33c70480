package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashDeterministic(t *testing.T) {
	assert.Equal(t, Hash("NGUYEN", "AN", "19850512"), Hash("NGUYEN", "AN", "19850512"))
	assert.Len(t, Hash("x"), 64)
}

func TestHashOrderSensitive(t *testing.T) {
	assert.NotEqual(t, Hash("NGUYEN", "AN"), Hash("AN", "NGUYEN"))
}

func TestHashMissingFieldsDoNotCollide(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
	}{
		{"empty vs omitted", []string{"A", "B", ""}, []string{"A", "B"}},
		{"separator shift", []string{"A|B", "C"}, []string{"A", "B|C"}},
		{"empty moved", []string{"", "A"}, []string{"A", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, Hash(tt.a...), Hash(tt.b...))
		})
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{" smith ", "SMITH"},
		{"Van  der\tBerg", "VAN DER BERG"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Canonical(tt.in); got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHasherRoleKeys(t *testing.T) {
	h := NewHasher("")

	assert.Equal(t, h.PatientKey("Nguyen", "An", "19850512"), h.PatientKey(" NGUYEN", "an ", "19850512"))
	assert.NotEqual(t, h.PatientKey("Nguyen", "An", "19850512"), h.PatientKey("Nguyen", "An", "19850513"))

	// the organization identity falls back to the name
	assert.Equal(t, h.OrganizationKey("Lakeview Clinic", ""), h.OrganizationKey("Lakeview Clinic", "Lakeview Clinic"))
	assert.NotEqual(t, h.OrganizationKey("Lakeview Clinic", "1.2.3"), h.OrganizationKey("Lakeview Clinic", ""))

	assert.NotEqual(t, h.PatientIDKey("00045213"), h.MRNHash("00045213"))
	assert.NotEqual(t, h.ProviderIDKey("1234567890"), h.ProviderKey("1234567890", ""))

	// roles never share a key space
	assert.NotEqual(t, h.ProviderKey("Smith", "John"), h.key("patient", "Smith", "John"))

	salted := NewHasher("secret")
	assert.NotEqual(t, h.ProviderKey("Smith", "John"), salted.ProviderKey("Smith", "John"))
}

func TestIsNameCandidate(t *testing.T) {
	tests := []struct {
		name   string
		minLen int
		want   bool
	}{
		{"An", 2, true},
		{"A", 2, false},
		{"Lakeview Clinic", 3, true},
		{"ER", 3, false},
		{"Unknown", 2, false},
		{"1234", 2, false},
		{"  ", 2, false},
	}
	for _, tt := range tests {
		if got := IsNameCandidate(tt.name, tt.minLen); got != tt.want {
			t.Errorf("IsNameCandidate(%q, %d) = %v, want %v", tt.name, tt.minLen, got, tt.want)
		}
	}
}
