package fakegen

import (
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatientDOBStaysNearOriginal(t *testing.T) {
	g := New(Options{Seed: 7})
	for i := 0; i < 50; i++ {
		p := g.Patient("19850512")
		require.Len(t, p.DOB, 8)
		year, err := strconv.Atoi(p.DOB[:4])
		require.NoError(t, err)
		assert.InDelta(t, 1985, year, 5)
		_, err = time.Parse("20060102", p.DOB)
		assert.NoError(t, err)
		assert.NotEmpty(t, p.FirstName)
		assert.NotEmpty(t, p.LastName)
	}
}

func TestPatientWithoutDOB(t *testing.T) {
	g := New(Options{Seed: 7})
	p := g.Patient("")
	year, err := strconv.Atoi(p.DOB[:4])
	require.NoError(t, err)
	assert.LessOrEqual(t, year, time.Now().Year()-18)
}

func TestMRNFormat(t *testing.T) {
	g := New(Options{Seed: 1, MRNSuffixLength: 6})
	re := regexp.MustCompile(`^LAKE-[A-Z0-9]{6}$`)
	for i := 0; i < 20; i++ {
		assert.Regexp(t, re, g.MRN("lake"))
	}

	short := New(Options{Seed: 1, MRNSuffixLength: 2})
	assert.Regexp(t, `^MRN-[A-Z0-9]{4}$`, short.MRN(""), "suffix is at least four characters")
}

func TestMRNPrefix(t *testing.T) {
	tests := []struct {
		org, fallback, want string
	}{
		{"abc", "TX", "ABC"},
		{"a-b c", "TX", "ABC"},
		{"", "tx", "TX"},
		{"--", "", "MRN"},
	}
	for _, tt := range tests {
		if got := MRNPrefix(tt.org, tt.fallback); got != tt.want {
			t.Errorf("MRNPrefix(%q, %q) = %q, want %q", tt.org, tt.fallback, got, tt.want)
		}
	}
}

func TestPhoneAndProvider(t *testing.T) {
	g := New(Options{Seed: 3})
	assert.Regexp(t, `^\(\d{3}\)\d{3}-\d{4}$`, g.Phone())
	assert.Regexp(t, `^\d{10}$`, g.Provider().NPI)
	assert.Regexp(t, `^\d{7}$`, g.Digits(7))
	assert.Empty(t, g.Digits(0))
}

func TestOrganization(t *testing.T) {
	g := New(DefaultOptions())
	org := g.Organization()
	assert.Regexp(t, `^[A-Z]{3,4}$`, org.OrgID)
	assert.NotEmpty(t, org.Name)
	assert.NotEmpty(t, org.City)
	require.NotNil(t, org.Latitude)
}

func TestAddressDefaultState(t *testing.T) {
	g := New(Options{Seed: 9, DefaultState: "TX", OutOfStateProbability: 0})
	for i := 0; i < 10; i++ {
		assert.Equal(t, "TX", g.Address().State)
	}
}

func TestEMRNameDeterministic(t *testing.T) {
	a := New(Options{Seed: 1})
	b := New(Options{Seed: 2})
	assert.Equal(t, a.EMRName("ACME_EHR"), b.EMRName("ACME_EHR"))
	assert.Contains(t, emrNames, a.EMRName("anything"))
}
