package deployment

import "github.com/ostreedev/rpmostreed-core/internal/ostreeerr"

// List is an ordered sequence of Deployments as published by a single
// sysroot load. Invariants (§3 I1-I4) are established by the writer
// (sysroot.View) and assumed to hold by every reader here: (osname,
// checksum, serial) unique, at most one Booted entry, Index 0..n-1
// contiguous and reflecting position.
type List []Deployment

// Model derives the booted/default/rollback selection from an ordered list
// (§4.2). It holds no mutable state beyond the list and booted id it was
// built from; a new sysroot reload produces a new Model rather than
// mutating an existing one.
type Model struct {
	list     List
	bootedID string
}

// NewModel builds a Model from list, resolving Booted against the
// Deployment whose Booted flag is set (at most one per I2).
func NewModel(list List) Model {
	m := Model{list: list}
	for _, d := range list {
		if d.Booted {
			m.bootedID = d.ID()
			break
		}
	}
	return m
}

// List returns the full ordered deployment list.
func (m Model) List() List { return m.list }

// BootedID returns the id of the booted deployment, or "" if none.
func (m Model) BootedID() string { return m.bootedID }

// Default returns list[0], the entry that will be used on next boot, or the
// zero Deployment and false if the list is empty.
func (m Model) Default() (Deployment, bool) {
	if len(m.list) == 0 {
		return Deployment{}, false
	}
	return m.list[0], true
}

// Booted returns the entry matching the running system's reference, or the
// zero Deployment and false if none is booted.
func (m Model) Booted() (Deployment, bool) {
	if m.bootedID == "" {
		return Deployment{}, false
	}
	return m.ByID(m.bootedID)
}

// Rollback returns the first non-booted entry that shares the booted
// entry's osname and appears at a later index (§4.2). It is only meaningful
// when a booted entry exists; ok is false otherwise or when none qualifies.
func (m Model) Rollback() (Deployment, bool) {
	booted, ok := m.Booted()
	if !ok {
		return Deployment{}, false
	}
	for _, d := range m.list {
		if d.Index <= booted.Index {
			continue
		}
		if d.OSName == booted.OSName {
			return d, true
		}
	}
	return Deployment{}, false
}

// ByID looks up a deployment by its generated id.
func (m Model) ByID(id string) (Deployment, bool) {
	for _, d := range m.list {
		if d.ID() == id {
			return d, true
		}
	}
	return Deployment{}, false
}

// ByOSName returns every deployment for osname, in list order.
func (m Model) ByOSName(osname string) List {
	var out List
	for _, d := range m.list {
		if d.OSName == osname {
			out = append(out, d)
		}
	}
	return out
}

// DefaultForOS returns the highest-priority (lowest index) deployment for
// osname, erroring with MissingDeployment if osname has none.
func (m Model) DefaultForOS(osname string) (Deployment, error) {
	for _, d := range m.list {
		if d.OSName == osname {
			return d, nil
		}
	}
	return Deployment{}, ostreeerr.New(ostreeerr.MissingDeployment, "no deployment for osname %q", osname)
}
