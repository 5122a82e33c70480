package narrative

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func nguyenPairs() []Pair {
	return []Pair{
		{Original: "An Nguyen", Replacement: "Maria Lopez", Kind: KindName},
		{Original: "Nguyen, An", Replacement: "Lopez, Maria", Kind: KindName},
		{Original: "Nguyen", Replacement: "Lopez", Kind: KindName},
		{Original: "An", Replacement: "Maria", Kind: KindName},
		{Original: "Lakeview Clinic", Replacement: "Round Rock Medical Center", Kind: KindOrganization},
	}
}

func TestScrub(t *testing.T) {
	s := New(nguyenPairs(), MRN{Original: "00045213", Replacement: "LAKE-4821"}, DefaultPolicy())

	tests := []struct {
		name, in, want string
	}{
		{"full name", "Patient An Nguyen seen today.", "Patient Maria Lopez seen today."},
		{"reversed", "NGUYEN, AN presented", "Lopez, Maria presented"},
		{"case not preserved", "nguyen or NGUYEN", "Lopez or Lopez"},
		{"organization", "seen at Lakeview Clinic.", "seen at Round Rock Medical Center."},
		{"inside file name", "file NGUYEN_AN_note.pdf", "file Lopez_Maria_note.pdf"},
		{"glued to title", "seen by DrNguyen", "seen by DrLopez"},
		{"glued to digit", "Lakeview Clinic2", "Round Rock Medical Center2"},
		{"mrn standalone", "MRN 00045213.", "MRN LAKE-4821."},
		{"mrn hyphen token", "TX-00045213-A", "TX-00045213-A"},
		{"mrn glued to letters", "MRN00045213, acct#A00045213", "MRNLAKE-4821, acct#LAKE-4821"},
		{"mrn glued to digit", "000452139", "LAKE-48219"},
		{"mrn after hyphen", "ref TX-00045213", "ref TX-00045213"},
		{"mrn before hyphen", "00045213-B", "00045213-B"},
		{"mrn lone hyphen", "id - 00045213 -", "id - LAKE-4821 -"},
		{"nothing to do", "no identifiers here", "no identifiers here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Scrub(tt.in))
		})
	}
}

func TestScrubIdempotent(t *testing.T) {
	s := New(nguyenPairs(), MRN{Original: "00045213", Replacement: "LAKE-4821"}, DefaultPolicy())
	inputs := []string{
		"Patient An Nguyen seen at Lakeview Clinic, MRN 00045213.",
		"Nguyen, An; contact NGUYEN; an apple",
	}
	for _, in := range inputs {
		once := s.Scrub(in)
		assert.Equal(t, once, s.Scrub(once))
	}
}

func TestCandidateOrderAndThresholds(t *testing.T) {
	s := New([]Pair{
		{Original: "Al", Replacement: "Bo", Kind: KindName},
		{Original: "A", Replacement: "B", Kind: KindName},
		{Original: "ER", Replacement: "Ward", Kind: KindOrganization},
		{Original: "Smith", Replacement: "Jones", Kind: KindName},
		{Original: "Adams", Replacement: "Brown", Kind: KindName},
		{Original: "smith", Replacement: "Ignored", Kind: KindName},
		{Original: "Same", Replacement: "SAME", Kind: KindName},
	}, MRN{}, DefaultPolicy())

	assert.Equal(t, []string{"Adams", "Smith", "Al"}, s.Candidates())
	assert.Equal(t, "Jones went to the ER", s.Scrub("SMITH went to the ER"))
}

func TestConfigurableThresholds(t *testing.T) {
	p := DefaultPolicy()
	p.MinNameLength = 4
	s := New([]Pair{{Original: "Ann", Replacement: "Eve", Kind: KindName}}, MRN{Original: "12", Replacement: "X-1"}, p)
	assert.True(t, s.Empty())
	assert.Equal(t, "Ann 12", s.Scrub("Ann 12"))
}

func TestNonWordEdges(t *testing.T) {
	s := New([]Pair{{Original: "(512)555-0199", Replacement: "(210)555-0100", Kind: KindLocation}}, MRN{}, DefaultPolicy())
	assert.Equal(t, "call (210)555-0100.", s.Scrub("call (512)555-0199."))
}

func TestWholeWords(t *testing.T) {
	pairs := []Pair{{Original: "Ann", Replacement: "Eve", Kind: KindName}}
	assert.Equal(t, "Eveual", New(pairs, MRN{}, DefaultPolicy()).Scrub("Annual"))

	p := DefaultPolicy()
	p.WholeWords = true
	assert.Equal(t, "Annual visit, Eve.", New(pairs, MRN{}, p).Scrub("Annual visit, Ann."))
}

func TestCollisionsUseSubstrings(t *testing.T) {
	s := New([]Pair{{Original: "Ann", Replacement: "Joanna", Kind: KindName}}, MRN{}, DefaultPolicy())
	assert.Equal(t, []string{"Joanna"}, s.Collisions())

	p := DefaultPolicy()
	p.WholeWords = true
	assert.Empty(t, New([]Pair{{Original: "Ann", Replacement: "Joanna", Kind: KindName}}, MRN{}, p).Collisions())
}

func TestCollisions(t *testing.T) {
	s := New([]Pair{
		{Original: "Nguyen", Replacement: "Tran", Kind: KindName},
		{Original: "Tran", Replacement: "Le", Kind: KindName},
	}, MRN{}, DefaultPolicy())
	assert.Equal(t, []string{"Tran"}, s.Collisions())

	clean := New(nguyenPairs(), MRN{}, DefaultPolicy())
	assert.Empty(t, clean.Collisions())
}
