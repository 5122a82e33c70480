package document

import "strings"

// Name groups the fields of one person name.
type Name struct {
	Family []Field
	Given  []Field
}

// FamilyValue returns the first non-empty family name.
func (n Name) FamilyValue() string { return FirstValue(n.Family) }

// GivenValue returns the first non-empty given name.
func (n Name) GivenValue() string { return FirstValue(n.Given) }

// Empty reports whether the name carries no values.
func (n Name) Empty() bool { return n.FamilyValue() == "" && n.GivenValue() == "" }

// Address groups the fields of one postal address.
type Address struct {
	Street []Field
	City   []Field
	State  []Field
	Zip    []Field
}

// Values returns every non-empty value in the address.
func (a Address) Values() []string {
	var out []string
	for _, group := range [][]Field{a.Street, a.City, a.State, a.Zip} {
		for _, f := range group {
			if v := strings.TrimSpace(f.Value()); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// Patient is the primary subject of a document.
type Patient struct {
	Names     []Name
	DOB       []Field
	IDs       []Field
	SSN       []Field
	Addresses []Address
	Telecoms  []Field
}

// Provider is a clinician identified by name.
type Provider struct {
	Name Name
	IDs  []Field
}

// Organization is a facility or organization block.
type Organization struct {
	Name []Field
	// Identity disambiguates same-named organizations (e.g. an OID).
	Identity string
	IDs      []Field
	// Coded organizations carry a short code rather than a display name,
	// so they receive the fake org id.
	Coded bool
	// Primary marks the organization that owns the patient's MRN.
	Primary bool
}

// NameValue returns the organization's first non-empty name.
func (o Organization) NameValue() string { return FirstValue(o.Name) }

// Contact is a non-provider person: next of kin, guardian, guarantor.
type Contact struct {
	Name      Name
	Addresses []Address
	Telecoms  []Field
}

// Extraction is the set of identifying entities found in one document.
// Handles point into the document so resolved fakes can be written back.
type Extraction struct {
	Patient       *Patient
	Providers     []Provider
	Organizations []Organization
	Contacts      []Contact
	// Addresses and Telecoms outside any entity above.
	Addresses []Address
	Telecoms  []Field
	// FreeNames are unstructured person names.
	FreeNames []Field
}
