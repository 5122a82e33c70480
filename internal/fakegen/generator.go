// Package fakegen produces plausible synthetic identities. It makes no
// consistency promises; repeated calls return unrelated values and the
// pseudonym store is responsible for reusing them.
package fakegen

import (
	"crypto/sha256"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"phi-sanitizer/internal/phi"
)

// Generator is the synthetic value provider used by the sanitizers.
type Generator interface {
	Patient(originalDOB string) phi.Patient
	Person() phi.Person
	Address() phi.Address
	Organization() phi.Organization
	Provider() phi.Provider
	Phone() string
	Digits(n int) string
	Email(first, last string) string
	URL() string
	Employer() string
	MRN(orgPrefix string) string
	EMRName(original string) string
}

// Options tunes generated values.
type Options struct {
	DefaultState          string
	OutOfStateProbability float64
	MRNPrefix             string
	MRNSuffixLength       int
	// Seed makes output reproducible; zero seeds from the system.
	Seed uint64
}

// DefaultOptions returns the generator defaults.
func DefaultOptions() Options {
	return Options{
		DefaultState:          "TX",
		OutOfStateProbability: 0.1,
		MRNPrefix:             "MRN",
		MRNSuffixLength:       6,
	}
}

type location struct {
	City  string
	State string
	Zip   string
	Lat   float64
	Lon   float64
}

var homeLocations = []location{
	{"Houston", "TX", "77002", 29.7604, -95.3698},
	{"Dallas", "TX", "75201", 32.7767, -96.7970},
	{"San Antonio", "TX", "78205", 29.4241, -98.4936},
	{"Austin", "TX", "78701", 30.2672, -97.7431},
	{"Fort Worth", "TX", "76102", 32.7555, -97.3308},
	{"El Paso", "TX", "79901", 31.7619, -106.4850},
	{"Lubbock", "TX", "79401", 33.5779, -101.8552},
	{"Corpus Christi", "TX", "78401", 27.8006, -97.3964},
	{"Waco", "TX", "76701", 31.5493, -97.1467},
	{"Tyler", "TX", "75701", 32.3513, -95.3011},
}

var otherLocations = []location{
	{"Oklahoma City", "OK", "73102", 35.4676, -97.5164},
	{"Shreveport", "LA", "71101", 32.5252, -93.7502},
	{"Albuquerque", "NM", "87102", 35.0844, -106.6504},
	{"Little Rock", "AR", "72201", 34.7465, -92.2896},
	{"Denver", "CO", "80202", 39.7392, -104.9903},
}

var areaCodes = []string{
	"210", "214", "254", "281", "325", "361", "409", "432",
	"469", "512", "682", "713", "737", "806", "817", "830",
	"832", "903", "915", "936", "940", "956", "972", "979",
}

var orgTypes = []string{
	"Medical Center", "Hospital", "Health System", "Clinic", "Healthcare", "Regional Medical",
}

var emrNames = []string{"EPIC", "Cerner", "eCW", "Meditech", "NetSmart"}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

const mrnAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Faker is a Generator backed by gofakeit.
type Faker struct {
	f    *gofakeit.Faker
	opts Options
	now  func() time.Time
}

// New creates a Faker.
func New(opts Options) *Faker {
	if opts.DefaultState == "" {
		opts.DefaultState = DefaultOptions().DefaultState
	}
	if opts.MRNSuffixLength < 4 {
		opts.MRNSuffixLength = 4
	}
	return &Faker{f: gofakeit.New(opts.Seed), opts: opts, now: time.Now}
}

// Patient generates a fake patient. With a usable original DOB the fake
// birth year stays within five years of the real one.
func (g *Faker) Patient(originalDOB string) phi.Patient {
	return phi.Patient{
		FirstName: g.f.FirstName(),
		LastName:  g.f.LastName(),
		DOB:       g.birthDate(originalDOB),
		SSN:       g.f.SSN(),
	}
}

func (g *Faker) birthDate(originalDOB string) string {
	now := g.now()
	var year int
	if len(originalDOB) >= 8 {
		if y, err := strconv.Atoi(originalDOB[:4]); err == nil && y > 1800 {
			year = y + g.f.IntRange(-5, 5)
		}
	}
	if year == 0 {
		year = now.Year() - g.f.IntRange(18, 90)
	}
	if year > now.Year() {
		year = now.Year()
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	if end.After(now) {
		end = now
	}
	return g.f.DateRange(start, end).Format("20060102")
}

// Person generates a fake name that is not persisted.
func (g *Faker) Person() phi.Person {
	return phi.Person{FirstName: g.f.FirstName(), LastName: g.f.LastName()}
}

// Address generates a fake address, mostly in the default state.
func (g *Faker) Address() phi.Address {
	loc := homeLocations[g.f.IntRange(0, len(homeLocations)-1)]
	loc.State = g.opts.DefaultState
	if g.f.Float64Range(0, 1) < g.opts.OutOfStateProbability {
		loc = otherLocations[g.f.IntRange(0, len(otherLocations)-1)]
	}
	lat, lon := loc.Lat, loc.Lon
	return phi.Address{
		Street:    g.f.Street(),
		City:      loc.City,
		State:     loc.State,
		Zip:       loc.Zip,
		Latitude:  &lat,
		Longitude: &lon,
	}
}

// Organization generates "<City> <type>" with a three or four letter
// facility id.
func (g *Faker) Organization() phi.Organization {
	n := g.f.IntRange(3, 4)
	var id strings.Builder
	for i := 0; i < n; i++ {
		id.WriteByte(byte('A' + g.f.IntRange(0, 25)))
	}
	return phi.Organization{
		Name:    g.f.City() + " " + orgTypes[g.f.IntRange(0, len(orgTypes)-1)],
		OrgID:   id.String(),
		Address: g.Address(),
	}
}

// Provider generates a fake provider with a ten digit NPI-like id.
func (g *Faker) Provider() phi.Provider {
	return phi.Provider{
		FirstName: g.f.FirstName(),
		LastName:  g.f.LastName(),
		NPI:       g.f.Numerify("##########"),
	}
}

// Phone returns "(AAA)EEE-NNNN".
func (g *Faker) Phone() string {
	area := areaCodes[g.f.IntRange(0, len(areaCodes)-1)]
	return "(" + area + ")" + g.f.Numerify("###-####")
}

// Digits returns n random digits, for identifiers that carry no format
// beyond their length.
func (g *Faker) Digits(n int) string {
	if n <= 0 {
		return ""
	}
	return g.f.Numerify(strings.Repeat("#", n))
}

// Email returns a fake address unrelated to the given name.
func (g *Faker) Email(first, last string) string {
	return g.f.Email()
}

// URL returns a fake web address.
func (g *Faker) URL() string {
	return g.f.URL()
}

// Employer returns "<Company> Corp".
func (g *Faker) Employer() string {
	return g.f.Company() + " Corp"
}

// MRN returns "<PREFIX>-<SUFFIX>". The prefix is the organization prefix
// reduced to upper-case alphanumerics, falling back to the configured
// prefix and then "MRN".
func (g *Faker) MRN(orgPrefix string) string {
	var suffix strings.Builder
	for i := 0; i < g.opts.MRNSuffixLength; i++ {
		suffix.WriteByte(mrnAlphabet[g.f.IntRange(0, len(mrnAlphabet)-1)])
	}
	return MRNPrefix(orgPrefix, g.opts.MRNPrefix) + "-" + suffix.String()
}

// MRNPrefix normalizes an organization prefix for use in a fake MRN.
func MRNPrefix(orgPrefix, fallback string) string {
	for _, p := range []string{orgPrefix, fallback} {
		if p = nonAlnum.ReplaceAllString(strings.ToUpper(p), ""); p != "" {
			return p
		}
	}
	return "MRN"
}

// EMRName maps a sending application to one of a fixed set of EMR names.
// The choice is a pure function of the original so it is stable across
// runs without touching the store.
func (g *Faker) EMRName(original string) string {
	sum := sha256.Sum256([]byte(original))
	n := new(big.Int).SetBytes(sum[:])
	return emrNames[new(big.Int).Mod(n, big.NewInt(int64(len(emrNames)))).Int64()]
}
