package models

import "sort"

// Snapshot is the complete record collection of one partition, keyed by id.
// A nil Snapshot means the partition is empty.
type Snapshot map[string]*Booking

// NewSnapshot builds a snapshot from a list; an empty list yields nil.
func NewSnapshot(records []*Booking) Snapshot {
	if len(records) == 0 {
		return nil
	}
	s := make(Snapshot, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		s[r.ID] = r
	}
	return s
}

// IDs returns record ids in ascending order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Records returns the records in ascending id order, skipping nil entries.
func (s Snapshot) Records() []*Booking {
	out := make([]*Booking, 0, len(s))
	for _, id := range s.IDs() {
		if r := s[id]; r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	c := make(Snapshot, len(s))
	for id, r := range s {
		c[id] = r.Clone()
	}
	return c
}
