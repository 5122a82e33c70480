// Package sanitizer de-identifies one document at a time and runs batches
// of documents against a shared pseudonym store.
package sanitizer

import (
	"context"

	"github.com/rs/zerolog"

	"phi-sanitizer/internal/dates"
	"phi-sanitizer/internal/document"
	"phi-sanitizer/internal/finder"
	"phi-sanitizer/internal/identity"
	"phi-sanitizer/internal/narrative"
	"phi-sanitizer/internal/phi"
)

// Store is the subset of the pseudonym store the sanitizers use.
type Store interface {
	Hasher() *identity.Hasher
	GetOrCreatePatient(ctx context.Context, key string, gen func() phi.Patient) (phi.Patient, error)
	GetOrCreateOrganization(ctx context.Context, key string, gen func() phi.Organization) (phi.Organization, error)
	GetOrCreateProvider(ctx context.Context, key string, gen func() phi.Provider) (phi.Provider, error)
	GetOrCreateMRN(ctx context.Context, patientKey, orgKey, originalMRN, candidate string) (string, error)
}

// Options tunes both sanitizers.
type Options struct {
	Policy narrative.Policy
	// ReceivingPlaceholder replaces MSH-5 and MSH-6.
	ReceivingPlaceholder string
}

// DefaultOptions returns the standard options.
func DefaultOptions() Options {
	return Options{
		Policy:               narrative.DefaultPolicy(),
		ReceivingPlaceholder: "IS",
	}
}

// Result describes one sanitized document.
type Result struct {
	Output []byte
	// PHICount is the number of values replaced, including free-text
	// positions and coarsened dates.
	PHICount   int
	Type       string
	PatientKey string
	FakeMRN    string
	// Collisions counts fake values that would match an original.
	Collisions int
}

// Sanitizer de-identifies documents of one format.
type Sanitizer interface {
	Format() finder.Format
	Sanitize(ctx context.Context, raw []byte) (*Result, error)
}

// finish runs the free-text and date passes once the structured fields
// are rewritten.
func (r *resolver) finish(doc document.Document) {
	mrn := narrative.MRN{Original: r.escape(r.mrn), Replacement: r.escape(r.fakeMRN)}
	s := narrative.New(r.pairs, mrn, r.opts.Policy)
	if c := s.Collisions(); len(c) > 0 {
		r.collisions = len(c)
		r.logger.Warn().Int("count", len(c)).Msg("replacement values overlap original candidates")
	}
	if !s.Empty() {
		n := doc.WalkText(s.Scrub)
		r.logger.Debug().Int("positions", n).Int("candidates", len(s.Candidates())).Msg("scrubbed free text")
		r.count += n
	}
	r.count += dates.CoarsenFields(doc.Locate(document.RoleDate))
}

func (r *resolver) result(out []byte, docType string) *Result {
	return &Result{
		Output:     out,
		PHICount:   r.count,
		Type:       docType,
		PatientKey: r.patientKey,
		FakeMRN:    r.fakeMRN,
		Collisions: r.collisions,
	}
}

func newLogger(logger zerolog.Logger, format finder.Format) zerolog.Logger {
	return logger.With().Str("format", string(format)).Logger()
}
