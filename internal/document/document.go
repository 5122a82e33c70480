// Package document defines the contract shared by the wire-format
// adapters: documents expose fields by semantic role, and fields can be
// read and rewritten without changing the document's shape.
package document

import "errors"

// ErrParse marks malformed input. It fails the current file only.
var ErrParse = errors.New("parse failure")

// Role is a semantic field category mapped to concrete locations by each
// adapter.
type Role string

const (
	RolePatientID        Role = "patient-id"
	RolePatientFamily    Role = "patient-name-family"
	RolePatientGiven     Role = "patient-name-given"
	RolePatientDOB       Role = "patient-dob"
	RolePatientSSN       Role = "patient-ssn"
	RolePatientStreet    Role = "patient-address-street"
	RolePatientCity      Role = "patient-address-city"
	RolePatientState     Role = "patient-address-state"
	RolePatientZip       Role = "patient-address-zip"
	RolePatientTelecom   Role = "patient-telecom"
	RoleTelecom          Role = "telecom"
	RoleProviderID       Role = "provider-id"
	RoleProviderFamily   Role = "provider-name-family"
	RoleProviderGiven    Role = "provider-name-given"
	RoleOrganizationName Role = "org-name"
	RoleOrganizationID   Role = "org-id"
	RoleDate             Role = "date"
)

// Field is a handle to one addressable value.
type Field interface {
	Value() string
	// SetValue replaces the value in place. Writes to positions that do
	// not exist are ignored.
	SetValue(v string)
	// Address describes the location for logs, e.g. "PID-5.1" or
	// "/ClinicalDocument/recordTarget/patientRole/id/@extension".
	Address() string
}

// Document is a parsed, editable document.
type Document interface {
	// Locate returns the present fields for role in document order.
	// Absent fields are skipped, so an empty result is not an error.
	Locate(role Role) []Field
	// WalkText passes every free-text position through fn and returns the
	// number of positions that changed.
	WalkText(fn func(string) string) int
	Serialize() []byte
}

// SetAll writes v to every field and returns how many non-empty values
// were replaced. Empty fields stay empty.
func SetAll(fields []Field, v string) int {
	n := 0
	for _, f := range fields {
		if f.Value() == "" {
			continue
		}
		f.SetValue(v)
		n++
	}
	return n
}

// FirstValue returns the first non-empty value among fields.
func FirstValue(fields []Field) string {
	for _, f := range fields {
		if v := f.Value(); v != "" {
			return v
		}
	}
	return ""
}
