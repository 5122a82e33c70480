package sanitizer

import (
	"context"

	"github.com/rs/zerolog"

	"phi-sanitizer/internal/cda"
	"phi-sanitizer/internal/fakegen"
	"phi-sanitizer/internal/finder"
)

// CCDSanitizer de-identifies CDA and CCD documents.
type CCDSanitizer struct {
	store  Store
	gen    fakegen.Generator
	opts   Options
	logger zerolog.Logger
}

// NewCCD creates a CDA sanitizer backed by st.
func NewCCD(st Store, gen fakegen.Generator, opts Options, logger zerolog.Logger) *CCDSanitizer {
	return &CCDSanitizer{store: st, gen: gen, opts: opts, logger: newLogger(logger, finder.FormatCCD)}
}

func (s *CCDSanitizer) Format() finder.Format { return finder.FormatCCD }

// Sanitize rewrites one document. Output always starts with an XML
// declaration.
func (s *CCDSanitizer) Sanitize(ctx context.Context, raw []byte) (*Result, error) {
	doc, err := cda.Parse(raw)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With().Str("document_type", string(doc.Type)).Logger()

	r := newResolver(ctx, s.store, s.gen, s.opts, logger, nil)
	if err := r.resolve(doc.Extract()); err != nil {
		return nil, err
	}
	r.finish(doc)

	out := doc.Serialize()
	if !doc.HasDeclaration() {
		out = append([]byte(cda.Declaration), out...)
	}
	return r.result(out, string(doc.Type)), nil
}

var _ Sanitizer = (*CCDSanitizer)(nil)
