// Package phi holds the synthetic identity records shared by the store,
// the generator and the sanitizers.
package phi

// Patient is the fake identity assigned to one real patient.
type Patient struct {
	Key       string
	FirstName string
	LastName  string
	DOB       string // YYYYMMDD
	SSN       string
}

// FullName returns "First Last".
func (p Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Address is a synthetic postal address.
type Address struct {
	Street    string
	City      string
	State     string
	Zip       string
	Latitude  *float64
	Longitude *float64
}

// Organization is the fake identity assigned to one real organization.
type Organization struct {
	Key   string
	Name  string
	OrgID string
	Address
}

// Provider is the fake identity assigned to one real provider.
type Provider struct {
	Key       string
	FirstName string
	LastName  string
	NPI       string
}

// Person is a non-persisted fake name used for contacts, guardians and
// other people who are not tracked across documents.
type Person struct {
	FirstName string
	LastName  string
}

// UnknownOrganization is the name used when a document carries no
// organization at all, so MRN mappings always have an owner.
const UnknownOrganization = "UNKNOWN_ORG"
