package hl7v2

import "phi-sanitizer/internal/document"

// XTN components holding identifying text: number, email, area code,
// local number.
var telecomComponents = []int{1, 4, 6, 7}

func (m *Message) ref(seg *Segment, field, rep, comp int) document.Field {
	f := &fieldRef{msg: m, seg: seg, field: field, rep: rep, comp: comp}
	if !f.present() {
		return nil
	}
	return f
}

func (m *Message) refs(seg *Segment, field, rep int, comps ...int) []document.Field {
	var out []document.Field
	for _, c := range comps {
		if f := m.ref(seg, field, rep, c); f != nil {
			out = append(out, f)
		}
	}
	return out
}

func (m *Message) repCount(seg *Segment, field int) int {
	f := &fieldRef{msg: m, seg: seg, field: field}
	return len(f.reps())
}

// XPN: 1 family, 2 given, 3 middle.
func (m *Message) names(seg *Segment, field int) []document.Name {
	var out []document.Name
	for r := 0; r < m.repCount(seg, field); r++ {
		n := document.Name{
			Family: m.refs(seg, field, r, 1),
			Given:  m.refs(seg, field, r, 2, 3),
		}
		if !n.Empty() {
			out = append(out, n)
		}
	}
	return out
}

// XAD: 1 street, 2 other designation, 3 city, 4 state, 5 zip.
func (m *Message) addresses(seg *Segment, field int) []document.Address {
	var out []document.Address
	for r := 0; r < m.repCount(seg, field); r++ {
		a := document.Address{
			Street: m.refs(seg, field, r, 1, 2),
			City:   m.refs(seg, field, r, 3),
			State:  m.refs(seg, field, r, 4),
			Zip:    m.refs(seg, field, r, 5),
		}
		if len(a.Values()) > 0 {
			out = append(out, a)
		}
	}
	return out
}

func (m *Message) telecoms(seg *Segment, field int) []document.Field {
	var out []document.Field
	for r := 0; r < m.repCount(seg, field); r++ {
		out = append(out, m.refs(seg, field, r, telecomComponents...)...)
	}
	return out
}

// Extract collects the identifying entities of the message.
func (m *Message) Extract() document.Extraction {
	var ex document.Extraction

	if pid := m.First("PID"); pid != nil {
		ex.Patient = &document.Patient{
			Names:     m.names(pid, 5),
			DOB:       m.Locate(document.RolePatientDOB),
			IDs:       m.Locate(document.RolePatientID),
			SSN:       m.Locate(document.RolePatientSSN),
			Addresses: m.addresses(pid, 11),
			Telecoms:  append(m.telecoms(pid, 13), m.telecoms(pid, 14)...),
		}
	}

	for _, loc := range providerFields {
		for _, seg := range m.All(loc.Segment) {
			for r := 0; r < m.repCount(seg, loc.Field); r++ {
				p := document.Provider{
					Name: document.Name{
						Family: m.refs(seg, loc.Field, r, 2),
						Given:  m.refs(seg, loc.Field, r, 3),
					},
					IDs: m.refs(seg, loc.Field, r, 1),
				}
				if !p.Name.Empty() || document.FirstValue(p.IDs) != "" {
					ex.Providers = append(ex.Providers, p)
				}
			}
		}
	}

	if msh := m.First("MSH"); msh != nil {
		if name := m.refs(msh, 4, 0, 1); document.FirstValue(name) != "" {
			ex.Organizations = append(ex.Organizations, document.Organization{
				Name:    name,
				IDs:     m.refs(msh, 4, 0, 2),
				Coded:   true,
				Primary: true,
			})
		}
	}
	for _, pv1 := range m.All("PV1") {
		if name := m.refs(pv1, 39, 0, 1); document.FirstValue(name) != "" {
			ex.Organizations = append(ex.Organizations, document.Organization{Name: name, Coded: true})
		}
	}

	for _, loc := range contactTable {
		for _, seg := range m.All(loc.Segment) {
			var c document.Contact
			if loc.Name > 0 {
				if names := m.names(seg, loc.Name); len(names) > 0 {
					c.Name = names[0]
					// further repetitions are aliases of the same person
					for _, alias := range names[1:] {
						c.Name.Family = append(c.Name.Family, alias.Family...)
						c.Name.Given = append(c.Name.Given, alias.Given...)
					}
				}
			}
			if loc.Address > 0 {
				c.Addresses = m.addresses(seg, loc.Address)
			}
			for _, p := range loc.Phones {
				c.Telecoms = append(c.Telecoms, m.telecoms(seg, p)...)
			}
			if !c.Name.Empty() || len(c.Addresses) > 0 || document.FirstValue(c.Telecoms) != "" {
				ex.Contacts = append(ex.Contacts, c)
			}
		}
	}

	return ex
}

// SendingApplication returns MSH-3.1.
func (m *Message) SendingApplication() document.Field {
	return m.locField(sendingApplication)
}

// ReceivingFields returns MSH-5.1 and MSH-6.1 when present.
func (m *Message) ReceivingFields() []document.Field {
	var out []document.Field
	for _, loc := range []Location{receivingApplication, receivingFacility} {
		if f := m.locField(loc); f != nil {
			out = append(out, f)
		}
	}
	return out
}

// EmployerNames returns IN2-72 of every IN2 segment.
func (m *Message) EmployerNames() []document.Field {
	var out []document.Field
	for _, seg := range m.All(employerName.Segment) {
		if f := m.ref(seg, employerName.Field, 0, employerName.Component); f != nil {
			out = append(out, f)
		}
	}
	return out
}

func (m *Message) locField(loc Location) document.Field {
	seg := m.First(loc.Segment)
	if seg == nil {
		return nil
	}
	return m.ref(seg, loc.Field, 0, loc.Component)
}
