package sanitizer

import (
	"context"

	"github.com/rs/zerolog"

	"phi-sanitizer/internal/document"
	"phi-sanitizer/internal/fakegen"
	"phi-sanitizer/internal/finder"
	"phi-sanitizer/internal/hl7v2"
	"phi-sanitizer/internal/narrative"
)

// HL7Sanitizer de-identifies HL7 v2 messages.
type HL7Sanitizer struct {
	store  Store
	gen    fakegen.Generator
	opts   Options
	logger zerolog.Logger
}

// NewHL7 creates an HL7 v2 sanitizer backed by st.
func NewHL7(st Store, gen fakegen.Generator, opts Options, logger zerolog.Logger) *HL7Sanitizer {
	return &HL7Sanitizer{store: st, gen: gen, opts: opts, logger: newLogger(logger, finder.FormatHL7)}
}

func (s *HL7Sanitizer) Format() finder.Format { return finder.FormatHL7 }

// Sanitize rewrites one message. Besides the resolved identities, the
// sending application becomes an EMR name, the receiving application and
// facility become the placeholder and IN2 employers get fake companies.
func (s *HL7Sanitizer) Sanitize(ctx context.Context, raw []byte) (*Result, error) {
	msg, err := hl7v2.Parse(raw)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With().Str("message_type", msg.Type).Logger()

	r := newResolver(ctx, s.store, s.gen, s.opts, logger, msg.Escape)
	if err := r.resolve(msg.Extract()); err != nil {
		return nil, err
	}

	if f := msg.SendingApplication(); f != nil && f.Value() != "" {
		f.SetValue(s.gen.EMRName(f.Value()))
		r.count++
	}
	if s.opts.ReceivingPlaceholder != "" {
		r.count += document.SetAll(msg.ReceivingFields(), s.opts.ReceivingPlaceholder)
	}
	for _, f := range msg.EmployerNames() {
		v := f.Value()
		if v == "" {
			continue
		}
		employer := s.gen.Employer()
		f.SetValue(employer)
		r.count++
		r.pair(v, employer, narrative.KindOrganization)
	}

	r.finish(msg)
	return r.result(msg.Serialize(), msg.Type), nil
}

var _ Sanitizer = (*HL7Sanitizer)(nil)
