package migrate

import (
	"fmt"
	"sort"
	"strings"
)

// deletionMarkerField marks a record for deletion instead of an upsert.
const deletionMarkerField = "_sdc_deleted_at"

// reservedRecordFields are record fields that never become entry attributes.
var reservedRecordFields = map[string]bool{
	"dn":                 true,
	"objectClass":        true,
	deletionMarkerField:  true,
	"_sdc_table_version": true,
	"_sdc_received_at":   true,
	"_sdc_sequence":      true,
}

// Record is a raw upstream record: a decoded map carrying at minimum
// enough fields to derive a DN, plus entry attributes.
type Record map[string]any

// IsDeletion reports whether the record carries a deletion marker.
func (r Record) IsDeletion() bool {
	v, ok := r[deletionMarkerField]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// ObjectClasses returns the record's objectClass values, handling both
// string and list forms.
func (r Record) ObjectClasses() []string {
	v, ok := r["objectClass"]
	if !ok {
		return nil
	}
	return anyToStrings(v)
}

// Attributes is a directory attribute map: attribute name to values.
type Attributes map[string][]string

// Get returns all values of an attribute, matching the name case-insensitively.
func (a Attributes) Get(name string) []string {
	if v, ok := a[name]; ok {
		return v
	}
	lower := strings.ToLower(name)
	for k, v := range a {
		if strings.ToLower(k) == lower {
			return v
		}
	}
	return nil
}

// First returns the first value of an attribute, or the empty string.
func (a Attributes) First(name string) string {
	values := a.Get(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Has reports whether the attribute exists with at least one non-empty value.
func (a Attributes) Has(name string) bool {
	for _, v := range a.Get(name) {
		if v != "" {
			return true
		}
	}
	return false
}

// Set replaces the attribute's values.
func (a Attributes) Set(name string, values []string) {
	a[name] = values
}

// Delete removes the attribute, matching the name case-insensitively.
func (a Attributes) Delete(name string) {
	lower := strings.ToLower(name)
	for k := range a {
		if strings.ToLower(k) == lower {
			delete(a, k)
		}
	}
}

// Names returns the attribute names in sorted order.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the attribute map.
func (a Attributes) Clone() Attributes {
	clone := make(Attributes, len(a))
	for k, v := range a {
		values := make([]string, len(v))
		copy(values, v)
		clone[k] = values
	}
	return clone
}

// Entry is a single directory entry: a DN plus its attributes. The
// objectClass attribute lives in Attributes like any other.
type Entry struct {
	DN         string
	Attributes Attributes
}

// ObjectClasses returns the entry's objectClass values.
func (e *Entry) ObjectClasses() []string {
	return e.Attributes.Get("objectClass")
}

// HasObjectClass reports whether the entry carries the object class,
// compared case-insensitively.
func (e *Entry) HasObjectClass(name string) bool {
	lower := strings.ToLower(name)
	for _, oc := range e.ObjectClasses() {
		if strings.ToLower(oc) == lower {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	return &Entry{
		DN:         e.DN,
		Attributes: e.Attributes.Clone(),
	}
}

// anyToStrings normalizes a decoded value to a string slice.
func anyToStrings(v any) []string {
	switch value := v.(type) {
	case nil:
		return nil
	case string:
		if value == "" {
			return nil
		}
		return []string{value}
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return []string{fmt.Sprintf("%v", value)}
	}
}
