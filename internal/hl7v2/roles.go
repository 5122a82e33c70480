package hl7v2

import "phi-sanitizer/internal/document"

// Location is a (segment, field, component) address. Component 0 means
// the whole field. Every instance of the segment and every repetition of
// the field is visited.
type Location struct {
	Segment   string
	Field     int
	Component int
}

// XCN fields: component 1 id, 2 family, 3 given.
var providerFields = []Location{
	{"PV1", 7, 0},  // attending
	{"PV1", 8, 0},  // referring
	{"PV1", 9, 0},  // consulting
	{"PV1", 17, 0}, // admitting
	{"OBR", 16, 0}, // ordering
	{"ORC", 12, 0}, // ordering
	{"OBX", 16, 0}, // responsible observer
}

func xcn(comp int) []Location {
	out := make([]Location, len(providerFields))
	for i, l := range providerFields {
		out[i] = Location{l.Segment, l.Field, comp}
	}
	return out
}

var roleTable = map[document.Role][]Location{
	document.RolePatientID:      {{"PID", 3, 1}, {"PID", 2, 1}, {"PID", 4, 1}},
	document.RolePatientFamily:  {{"PID", 5, 1}},
	document.RolePatientGiven:   {{"PID", 5, 2}, {"PID", 5, 3}},
	document.RolePatientDOB:     {{"PID", 7, 0}},
	document.RolePatientSSN:     {{"PID", 19, 0}},
	document.RolePatientStreet:  {{"PID", 11, 1}, {"PID", 11, 2}},
	document.RolePatientCity:    {{"PID", 11, 3}},
	document.RolePatientState:   {{"PID", 11, 4}},
	document.RolePatientZip:     {{"PID", 11, 5}},
	document.RolePatientTelecom: {{"PID", 13, 1}, {"PID", 14, 1}},
	document.RoleTelecom: {
		{"NK1", 5, 1}, {"NK1", 6, 1},
		{"GT1", 6, 1}, {"GT1", 7, 1},
		{"IN1", 6, 1},
		{"IN2", 63, 1}, {"IN2", 64, 1},
	},
	document.RoleProviderID:       xcn(1),
	document.RoleProviderFamily:   xcn(2),
	document.RoleProviderGiven:    xcn(3),
	document.RoleOrganizationName: {{"MSH", 4, 1}, {"PV1", 39, 1}},
	document.RoleOrganizationID:   {{"MSH", 4, 2}},
	document.RoleDate: {
		{"MSH", 7, 0},
		{"PID", 7, 0}, {"PID", 29, 0},
		{"PV1", 44, 0}, {"PV1", 45, 0},
		{"EVN", 2, 0}, {"EVN", 6, 0},
		{"OBR", 7, 0}, {"OBR", 8, 0},
		{"OBX", 14, 0},
		{"NK1", 16, 0}, {"GT1", 8, 0}, {"IN1", 18, 0},
	},
}

// contactLocation lists the name, address and phone fields of a contact
// segment. Zero means the segment has no such field.
type contactLocation struct {
	Segment string
	Name    int
	Address int
	Phones  []int
}

var contactTable = []contactLocation{
	{Segment: "NK1", Name: 2, Address: 4, Phones: []int{5, 6}},
	{Segment: "GT1", Name: 3, Address: 5, Phones: []int{6, 7}},
	{Segment: "IN1", Name: 16, Address: 19},
	{Segment: "IN1", Address: 5, Phones: []int{6}},
	{Segment: "IN2", Phones: []int{63, 64}},
}

// Fields rewritten with fixed or derived values rather than resolved
// identities.
var (
	sendingApplication   = Location{"MSH", 3, 1}
	receivingApplication = Location{"MSH", 5, 1}
	receivingFacility    = Location{"MSH", 6, 1}
	employerName         = Location{"IN2", 72, 0}
)
