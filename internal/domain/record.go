package domain

import "maps"

// Record is one stored value. The overlay treats it as opaque except for
// ID, which identifies the record among others sharing the same key
// (e.g. two films with the same title).
type Record struct {
	ID    string            `json:"id"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// NewRecord builds a record with a copy of attrs.
func NewRecord(id string, attrs map[string]string) Record {
	return Record{ID: id, Attrs: maps.Clone(attrs)}
}

// Clone returns a deep copy so stores never share attribute maps.
func (r Record) Clone() Record {
	return Record{ID: r.ID, Attrs: maps.Clone(r.Attrs)}
}

// Attr returns the named attribute or "".
func (r Record) Attr(name string) string {
	return r.Attrs[name]
}
