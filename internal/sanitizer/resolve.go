package sanitizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"phi-sanitizer/internal/document"
	"phi-sanitizer/internal/fakegen"
	"phi-sanitizer/internal/identity"
	"phi-sanitizer/internal/narrative"
	"phi-sanitizer/internal/phi"
)

// personAttempts bounds how often a non-persisted name is regenerated when
// it collides with a name found in the document.
const personAttempts = 5

// minValuePair is the shortest telecom or identifier scrubbed from free
// text. Area codes and exchanges stay out of the narrative map.
const minValuePair = 7

// resolver maps the entities of one document to their fakes, writes the
// fakes back through the field handles and records the original/fake
// pairs for the narrative pass.
type resolver struct {
	ctx    context.Context
	store  Store
	hasher *identity.Hasher
	gen    fakegen.Generator
	opts   Options
	logger zerolog.Logger
	// escape encodes a value the way free text holds it.
	escape func(string) string

	originals map[string]bool
	orgs      map[string]phi.Organization
	known     map[string]string
	pairs     []narrative.Pair

	count      int
	collisions int

	patientKey   string
	mrn, fakeMRN string

	primaryName, primaryIdentity string
}

func newResolver(ctx context.Context, st Store, gen fakegen.Generator, opts Options, logger zerolog.Logger, escape func(string) string) *resolver {
	if escape == nil {
		escape = func(s string) string { return s }
	}
	return &resolver{
		ctx:       ctx,
		store:     st,
		hasher:    st.Hasher(),
		gen:       gen,
		opts:      opts,
		logger:    logger,
		escape:    escape,
		originals: make(map[string]bool),
		orgs:      make(map[string]phi.Organization),
		known:     make(map[string]string),
	}
}

// resolve rewrites every extracted entity. Store errors are returned
// unchanged so callers can tell a run-fatal store failure apart.
func (r *resolver) resolve(ex document.Extraction) error {
	r.collect(ex)

	r.choosePrimary(ex.Organizations)
	if ex.Patient != nil {
		if err := r.patient(ex.Patient); err != nil {
			return err
		}
	}
	for _, p := range ex.Providers {
		if err := r.provider(p); err != nil {
			return err
		}
	}
	for _, o := range ex.Organizations {
		if err := r.organization(o); err != nil {
			return err
		}
	}
	for _, c := range ex.Contacts {
		r.contact(c)
	}
	for _, a := range ex.Addresses {
		r.address(a)
	}
	r.telecoms(ex.Telecoms)
	r.freeNames(ex.FreeNames)

	r.logger.Debug().
		Int("providers", len(ex.Providers)).
		Int("organizations", len(ex.Organizations)).
		Int("contacts", len(ex.Contacts)).
		Int("fields", r.count).
		Msg("resolved entities")
	return nil
}

// collect records every original name part so generated contact names can
// avoid them.
func (r *resolver) collect(ex document.Extraction) {
	addName := func(n document.Name) {
		for _, group := range [][]document.Field{n.Family, n.Given} {
			for _, f := range group {
				r.originals[identity.Canonical(f.Value())] = true
			}
		}
	}
	if ex.Patient != nil {
		for _, n := range ex.Patient.Names {
			addName(n)
		}
	}
	for _, p := range ex.Providers {
		addName(p.Name)
	}
	for _, c := range ex.Contacts {
		addName(c.Name)
	}
	for _, f := range ex.FreeNames {
		for _, w := range strings.Fields(f.Value()) {
			r.originals[identity.Canonical(w)] = true
		}
	}
	delete(r.originals, "")
}

// choosePrimary picks the organization that owns the patient's MRN: the
// one marked primary, else the first, else UNKNOWN_ORG. It is only
// persisted once a record number needs an owner.
func (r *resolver) choosePrimary(orgs []document.Organization) {
	pick := -1
	for i, o := range orgs {
		if o.Primary {
			pick = i
			break
		}
	}
	if pick < 0 && len(orgs) > 0 {
		pick = 0
	}
	r.primaryName, r.primaryIdentity = phi.UnknownOrganization, ""
	if pick >= 0 {
		r.primaryName, r.primaryIdentity = orgs[pick].NameValue(), orgs[pick].Identity
	}
}

func (r *resolver) organizationFor(name, ident string) (phi.Organization, error) {
	if strings.TrimSpace(name) == "" && strings.TrimSpace(ident) == "" {
		name = phi.UnknownOrganization
	}
	key := r.hasher.OrganizationKey(name, ident)
	if o, ok := r.orgs[key]; ok {
		return o, nil
	}
	o, err := r.store.GetOrCreateOrganization(r.ctx, key, r.gen.Organization)
	if err != nil {
		return phi.Organization{}, fmt.Errorf("resolve organization: %w", err)
	}
	r.orgs[key] = o
	return o, nil
}

func (r *resolver) patient(p *document.Patient) error {
	var family, given string
	for _, n := range p.Names {
		if !n.Empty() {
			family, given = n.FamilyValue(), n.GivenValue()
			break
		}
	}
	dob := strings.TrimSpace(document.FirstValue(p.DOB))
	r.mrn = strings.TrimSpace(document.FirstValue(p.IDs))

	key := r.hasher.PatientKey(family, given, dob)
	if identity.IsPlaceholderName(family) && identity.IsPlaceholderName(given) && r.mrn != "" {
		key = r.hasher.PatientIDKey(r.mrn)
		r.logger.Debug().Msg("patient name missing, keyed by record number")
	}

	genDOB := dob
	if identity.IsPlaceholderDOB(dob) {
		genDOB = ""
	}
	fake, err := r.store.GetOrCreatePatient(r.ctx, key, func() phi.Patient { return r.gen.Patient(genDOB) })
	if err != nil {
		return fmt.Errorf("resolve patient: %w", err)
	}
	r.patientKey = key

	for _, n := range p.Names {
		r.writeName(n, fake.FirstName, fake.LastName)
	}
	if ssn := document.FirstValue(p.SSN); ssn != "" {
		r.count += document.SetAll(p.SSN, fake.SSN)
		r.pair(ssn, fake.SSN, narrative.KindLocation)
	}

	if r.mrn != "" {
		primary, err := r.organizationFor(r.primaryName, r.primaryIdentity)
		if err != nil {
			return err
		}
		fakeMRN, err := r.store.GetOrCreateMRN(r.ctx, key, primary.Key, r.mrn, r.gen.MRN(primary.OrgID))
		if err != nil {
			return fmt.Errorf("resolve mrn: %w", err)
		}
		r.fakeMRN = fakeMRN
		r.count += document.SetAll(p.IDs, fakeMRN)
	}

	for _, a := range p.Addresses {
		r.address(a)
	}
	r.telecoms(p.Telecoms)
	return nil
}

func (r *resolver) provider(p document.Provider) error {
	family, given := p.Name.FamilyValue(), p.Name.GivenValue()
	id := strings.TrimSpace(document.FirstValue(p.IDs))

	var key string
	switch {
	case family != "" || given != "":
		key = r.hasher.ProviderKey(family, given)
	case id != "":
		key = r.hasher.ProviderIDKey(id)
	default:
		return nil
	}

	fake, err := r.store.GetOrCreateProvider(r.ctx, key, r.gen.Provider)
	if err != nil {
		return fmt.Errorf("resolve provider: %w", err)
	}
	r.writeName(p.Name, fake.FirstName, fake.LastName)
	r.count += document.SetAll(p.IDs, fake.NPI)
	if len(id) >= minValuePair {
		r.pair(id, fake.NPI, narrative.KindLocation)
	}
	return nil
}

// organization writes the fake name, or the fake org id for coded
// organizations, and the fake org id over every id field.
func (r *resolver) organization(o document.Organization) error {
	name := o.NameValue()
	fake, err := r.organizationFor(name, o.Identity)
	if err != nil {
		return err
	}
	if o.Coded {
		r.count += document.SetAll(o.Name, fake.OrgID)
	} else {
		r.count += document.SetAll(o.Name, fake.Name)
	}
	r.count += document.SetAll(o.IDs, fake.OrgID)
	r.pair(name, fake.Name, narrative.KindOrganization)
	return nil
}

func (r *resolver) contact(c document.Contact) {
	if !c.Name.Empty() {
		p := r.freshPerson()
		r.writeName(c.Name, p.FirstName, p.LastName)
	}
	for _, a := range c.Addresses {
		r.address(a)
	}
	r.telecoms(c.Telecoms)
}

// freshPerson generates a contact name whose parts do not appear among
// the document's original names.
func (r *resolver) freshPerson() phi.Person {
	var p phi.Person
	for i := 0; i < personAttempts; i++ {
		p = r.gen.Person()
		if !r.originals[identity.Canonical(p.FirstName)] && !r.originals[identity.Canonical(p.LastName)] {
			return p
		}
	}
	r.logger.Warn().Msg("generated contact name collides with an original name")
	return p
}

func (r *resolver) writeName(n document.Name, first, last string) {
	family, given := n.FamilyValue(), n.GivenValue()
	r.count += document.SetAll(n.Family, last)
	r.setGiven(n.Given, first)

	if family != "" && given != "" && !identity.IsPlaceholderName(family) && !identity.IsPlaceholderName(given) {
		r.pair(given+" "+family, first+" "+last, narrative.KindName)
		r.pair(family+", "+given, last+", "+first, narrative.KindName)
		r.pair(family+" "+given, last+" "+first, narrative.KindName)
	}
	r.pair(family, last, narrative.KindName)
	r.pair(given, first, narrative.KindName)
}

// setGiven writes the fake first name to the first given name and its
// initial to any further given names.
func (r *resolver) setGiven(fields []document.Field, first string) {
	initial := ""
	if rs := []rune(first); len(rs) > 0 {
		initial = string(rs[0])
	}
	seen := false
	for _, f := range fields {
		v := f.Value()
		if v == "" {
			continue
		}
		if !seen {
			f.SetValue(first)
			seen = true
		} else {
			f.SetValue(initial)
			r.pair(v, initial, narrative.KindName)
		}
		r.count++
	}
}

func (r *resolver) address(a document.Address) {
	if len(a.Values()) == 0 {
		return
	}
	fake := r.gen.Address()
	r.setLines(a.Street, fake.Street)
	r.setAll(a.City, fake.City, true)
	r.setAll(a.State, fake.State, false)
	r.setAll(a.Zip, fake.Zip, false)
}

// setLines writes street to the first street line and clears the rest.
func (r *resolver) setLines(fields []document.Field, street string) {
	seen := false
	for _, f := range fields {
		v := f.Value()
		if v == "" {
			continue
		}
		if !seen {
			f.SetValue(street)
			r.pair(v, street, narrative.KindLocation)
			seen = true
		} else {
			f.SetValue("")
		}
		r.count++
	}
}

func (r *resolver) setAll(fields []document.Field, v string, paired bool) {
	for _, f := range fields {
		orig := f.Value()
		if orig == "" {
			continue
		}
		f.SetValue(v)
		r.count++
		if paired {
			r.pair(orig, v, narrative.KindLocation)
		}
	}
}

func (r *resolver) telecoms(fields []document.Field) {
	for _, f := range fields {
		v := strings.TrimSpace(f.Value())
		if v == "" {
			continue
		}
		fake := r.telecom(v)
		f.SetValue(fake)
		r.count++

		_, orig := splitScheme(v)
		_, repl := splitScheme(fake)
		if len(orig) >= minValuePair {
			r.pair(orig, repl, narrative.KindLocation)
		}
	}
}

// telecom returns a fake of the same shape: the scheme prefix is kept and
// bare digit strings keep their length.
func (r *resolver) telecom(v string) string {
	scheme, rest := splitScheme(v)
	switch strings.ToLower(scheme) {
	case "tel:", "fax:":
		return scheme + r.gen.Phone()
	case "mailto:":
		return scheme + r.gen.Email("", "")
	case "http:", "https:":
		return r.gen.URL()
	}
	switch {
	case strings.Contains(rest, "@"):
		return r.gen.Email("", "")
	case isDigits(rest):
		return r.gen.Digits(len(rest))
	}
	return r.gen.Phone()
}

func splitScheme(v string) (scheme, rest string) {
	i := strings.Index(v, ":")
	if i <= 0 {
		return "", v
	}
	switch strings.ToLower(v[:i]) {
	case "tel", "fax", "mailto", "http", "https":
		return v[:i+1], v[i+1:]
	}
	return "", v
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// freeNames replaces unstructured person names: a name already mapped
// reuses its fake, any other gets a fresh one.
func (r *resolver) freeNames(fields []document.Field) {
	for _, f := range fields {
		v := strings.Join(strings.Fields(f.Value()), " ")
		if v == "" || identity.IsPlaceholderName(v) {
			continue
		}
		repl, ok := r.known[strings.ToLower(v)]
		if !ok {
			p := r.freshPerson()
			repl = p.FirstName + " " + p.LastName
			r.pair(v, repl, narrative.KindName)
		}
		f.SetValue(repl)
		r.count++
	}
}

// pair records an original/fake mapping for the narrative pass.
// Placeholders are never scrubbed from free text.
func (r *resolver) pair(orig, repl string, kind narrative.Kind) {
	orig = strings.TrimSpace(orig)
	if orig == "" || repl == "" || identity.IsPlaceholderName(orig) {
		return
	}
	key := strings.ToLower(orig)
	if _, ok := r.known[key]; !ok {
		r.known[key] = repl
	}
	r.pairs = append(r.pairs, narrative.Pair{
		Original:    r.escape(orig),
		Replacement: r.escape(repl),
		Kind:        kind,
	})
}
