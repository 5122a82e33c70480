package cda

import (
	"strings"

	"phi-sanitizer/internal/document"
)

// Paths are evaluated from the document element. A leading "//" searches
// the first step at any depth, "name[@a=v]" and "name[@a!=v]" filter on an
// attribute, and a final "@a" selects the attribute instead of the text.
type roleSpec struct {
	paths []string
	// outsideSubject drops fields owned by the patient or a guardian.
	outsideSubject bool
}

const ssnRoot = "2.16.840.1.113883.4.1"

// organizationTags are the elements whose name, id, addr and telecom
// describe an organization.
var organizationTags = []string{
	"representedOrganization",
	"representedCustodianOrganization",
	"serviceProviderOrganization",
	"providerOrganization",
	"wholeOrganization",
	"scopingOrganization",
	"receivedOrganization",
}

// dateTags carry a TS value attribute.
var dateTags = []string{"birthTime", "effectiveTime", "time", "low", "high", "center"}

var rolePaths = map[document.Role]roleSpec{
	document.RolePatientID:      {paths: []string{"recordTarget/patientRole/id[@root!=" + ssnRoot + "]/@extension"}},
	document.RolePatientSSN:     {paths: []string{"recordTarget/patientRole/id[@root=" + ssnRoot + "]/@extension"}},
	document.RolePatientFamily:  {paths: []string{"recordTarget/patientRole/patient/name/family"}},
	document.RolePatientGiven:   {paths: []string{"recordTarget/patientRole/patient/name/given"}},
	document.RolePatientDOB:     {paths: []string{"recordTarget/patientRole/patient/birthTime/@value"}},
	document.RolePatientStreet:  {paths: []string{"recordTarget/patientRole/addr/streetAddressLine"}},
	document.RolePatientCity:    {paths: []string{"recordTarget/patientRole/addr/city"}},
	document.RolePatientState:   {paths: []string{"recordTarget/patientRole/addr/state"}},
	document.RolePatientZip:     {paths: []string{"recordTarget/patientRole/addr/postalCode"}},
	document.RolePatientTelecom: {paths: []string{"recordTarget/patientRole/telecom/@value"}},
	document.RoleTelecom:        {paths: []string{"//telecom/@value"}, outsideSubject: true},
	document.RoleProviderFamily: {paths: []string{"//assignedPerson/name/family"}},
	document.RoleProviderGiven:  {paths: []string{"//assignedPerson/name/given"}},
	document.RoleProviderID:     {paths: []string{"//assignedAuthor/id/@extension", "//assignedEntity/id/@extension"}},
	document.RoleOrganizationName: {paths: append(
		tagPaths(organizationTags, "/name"),
		"//healthCareFacility/location/name",
	)},
	document.RoleOrganizationID: {paths: tagPaths(organizationTags, "/id/@extension")},
	document.RoleDate: {paths: append(
		tagPaths(dateTags, "/@value"),
		"//value[@xsi:type=TS]/@value",
	)},
}

func tagPaths(tags []string, suffix string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = "//" + t + suffix
	}
	return out
}

type step struct {
	local   string
	attr    string // predicate attribute, "" for none
	value   string
	negated bool
}

func parseStep(s string) step {
	open := strings.IndexByte(s, '[')
	if open < 0 {
		return step{local: s}
	}
	st := step{local: s[:open]}
	pred := strings.TrimSuffix(strings.TrimPrefix(s[open+1:], "@"), "]")
	if i := strings.Index(pred, "!="); i >= 0 {
		st.attr, st.value, st.negated = pred[:i], pred[i+2:], true
	} else if i := strings.IndexByte(pred, '='); i >= 0 {
		st.attr, st.value = pred[:i], pred[i+1:]
	}
	return st
}

func splitAttrName(name string) (space, local string) {
	if rest, ok := strings.CutPrefix(name, "xsi:"); ok {
		return namespaceXSI, rest
	}
	return "", name
}

func (s step) match(n *node) bool {
	if s.attr == "" {
		return true
	}
	space, local := splitAttrName(s.attr)
	v, _ := n.attr(space, local)
	return (strings.TrimSpace(v) == s.value) != s.negated
}

// eval resolves a path to fields. Attribute steps yield only elements
// that carry the attribute.
func (d *Document) eval(path string) []field {
	deep := strings.HasPrefix(path, "//")
	parts := strings.Split(strings.TrimPrefix(path, "//"), "/")

	var attrName string
	if last := parts[len(parts)-1]; strings.HasPrefix(last, "@") {
		attrName = last[1:]
		parts = parts[:len(parts)-1]
	}

	nodes := []*node{d.root}
	for i, p := range parts {
		st := parseStep(p)
		var next []*node
		for _, n := range nodes {
			var found []*node
			if i == 0 && deep {
				found = d.descendants(n, st.local)
			} else {
				found = d.children(n, st.local)
			}
			for _, f := range found {
				if st.match(f) {
					next = append(next, f)
				}
			}
		}
		nodes = next
	}

	var out []field
	for _, n := range nodes {
		if attrName == "" {
			out = append(out, &textField{n: n})
			continue
		}
		space, local := splitAttrName(attrName)
		if _, ok := n.attr(space, local); ok {
			out = append(out, &attrField{n: n, space: space, local: local})
		}
	}
	return out
}
