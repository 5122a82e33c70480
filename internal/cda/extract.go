package cda

import (
	"strings"

	"phi-sanitizer/internal/document"
)

// personTags hold a person whose name may be written as plain text.
var personTags = map[string]bool{
	"patient":              true,
	"assignedPerson":       true,
	"guardianPerson":       true,
	"associatedPerson":     true,
	"relatedPerson":        true,
	"informationRecipient": true,
	"maintainingPerson":    true,
}

// Extract collects the identifying entities of the document.
func (d *Document) Extract() document.Extraction {
	var ex document.Extraction
	claimed := make(map[int]bool)

	if roles := d.patientRoles(); len(roles) > 0 {
		p := &document.Patient{
			IDs:      d.Locate(document.RolePatientID),
			SSN:      d.Locate(document.RolePatientSSN),
			DOB:      d.Locate(document.RolePatientDOB),
			Telecoms: d.Locate(document.RolePatientTelecom),
		}
		for _, role := range roles {
			for _, pt := range d.children(role, "patient") {
				for _, n := range d.children(pt, "name") {
					claimed[n.index] = true
					if name, ok := d.name(n); ok {
						p.Names = append(p.Names, name)
					} else if f := text(n); f.Value() != "" {
						ex.FreeNames = append(ex.FreeNames, f)
					}
				}
			}
			p.Addresses = append(p.Addresses, d.addresses(role)...)
		}
		ex.Patient = p
	}

	for _, g := range d.guardians() {
		c := document.Contact{
			Addresses: d.addresses(g),
			Telecoms:  d.telecoms(g),
		}
		for _, gp := range d.children(g, "guardianPerson") {
			for _, n := range d.children(gp, "name") {
				claimed[n.index] = true
				if name, ok := d.name(n); ok {
					c.Name.Family = append(c.Name.Family, name.Family...)
					c.Name.Given = append(c.Name.Given, name.Given...)
				} else if f := text(n); f.Value() != "" {
					ex.FreeNames = append(ex.FreeNames, f)
				}
			}
		}
		if !c.Name.Empty() || len(c.Addresses) > 0 || len(c.Telecoms) > 0 {
			ex.Contacts = append(ex.Contacts, c)
		}
	}

	for _, ap := range d.descendants(d.root, "assignedPerson") {
		var ids []document.Field
		for _, id := range d.children(ap.parent, "id") {
			if f := attribute(id, "extension"); f != nil {
				ids = append(ids, f)
			}
		}
		for _, n := range d.children(ap, "name") {
			claimed[n.index] = true
			if name, ok := d.name(n); ok {
				ex.Providers = append(ex.Providers, document.Provider{Name: name, IDs: ids})
			} else if f := text(n); f.Value() != "" {
				ex.FreeNames = append(ex.FreeNames, f)
			}
		}
	}

	ex.Organizations = d.organizations()

	// Remaining person names belong to participants, informants and
	// recipients.
	for _, n := range d.descendants(d.root, "name") {
		if claimed[n.index] {
			continue
		}
		if name, ok := d.name(n); ok {
			if !name.Empty() {
				ex.Contacts = append(ex.Contacts, document.Contact{Name: name})
			}
			continue
		}
		if n.parent.space == d.Namespace && personTags[n.parent.local] {
			if f := text(n); f.Value() != "" {
				ex.FreeNames = append(ex.FreeNames, f)
			}
		}
	}

	for _, a := range d.descendants(d.root, "addr") {
		if d.subject[a.index] {
			continue
		}
		if addr, ok := d.address(a); ok {
			ex.Addresses = append(ex.Addresses, addr)
		}
	}
	ex.Telecoms = d.Locate(document.RoleTelecom)

	return ex
}

func (d *Document) organizations() []document.Organization {
	var out []document.Organization
	seen := make(map[int]bool)
	primary := false
	for _, tag := range organizationTags {
		for _, o := range d.descendants(d.root, tag) {
			if seen[o.index] {
				continue
			}
			seen[o.index] = true

			org := document.Organization{Identity: orgIdentity(d.child(o, "id"))}
			if n := d.child(o, "name"); n != nil {
				org.Name = []document.Field{text(n)}
			}
			for _, id := range d.children(o, "id") {
				if f := attribute(id, "extension"); f != nil {
					org.IDs = append(org.IDs, f)
				}
			}
			if org.NameValue() == "" && org.Identity == "" {
				continue
			}
			if tag == "representedOrganization" && !primary {
				org.Primary = true
				primary = true
			}
			out = append(out, org)
		}
	}
	for _, hf := range d.descendants(d.root, "healthCareFacility") {
		for _, loc := range d.children(hf, "location") {
			if n := d.child(loc, "name"); n != nil && text(n).Value() != "" {
				out = append(out, document.Organization{Name: []document.Field{text(n)}})
			}
		}
	}
	return out
}

// orgIdentity builds a stable identity from the root and extension of an
// organization's first id.
func orgIdentity(id *node) string {
	if id == nil {
		return ""
	}
	root, _ := id.attr("", "root")
	ext, _ := id.attr("", "extension")
	root, ext = strings.TrimSpace(root), strings.TrimSpace(ext)
	switch {
	case root != "" && ext != "":
		return root + "|" + ext
	case ext != "":
		return "EXT:" + ext
	case root != "":
		return "ROOT:" + root
	}
	return ""
}

// name reports ok when n has given or family parts.
func (d *Document) name(n *node) (document.Name, bool) {
	var name document.Name
	for _, f := range d.children(n, "family") {
		name.Family = append(name.Family, text(f))
	}
	for _, g := range d.children(n, "given") {
		name.Given = append(name.Given, text(g))
	}
	return name, len(name.Family)+len(name.Given) > 0
}

func (d *Document) addresses(owner *node) []document.Address {
	var out []document.Address
	for _, a := range d.children(owner, "addr") {
		if addr, ok := d.address(a); ok {
			out = append(out, addr)
		}
	}
	return out
}

func (d *Document) address(a *node) (document.Address, bool) {
	texts := func(local string) []document.Field {
		var out []document.Field
		for _, n := range d.children(a, local) {
			out = append(out, text(n))
		}
		return out
	}
	addr := document.Address{
		Street: texts("streetAddressLine"),
		City:   texts("city"),
		State:  texts("state"),
		Zip:    texts("postalCode"),
	}
	return addr, len(addr.Values()) > 0
}

func (d *Document) telecoms(owner *node) []document.Field {
	var out []document.Field
	for _, t := range d.children(owner, "telecom") {
		if f := attribute(t, "value"); f != nil {
			out = append(out, f)
		}
	}
	return out
}
