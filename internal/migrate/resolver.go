package migrate

import (
	"sort"

	"github.com/ldapmigrate/ldapmigrate/internal/ldap"
	"github.com/ldapmigrate/ldapmigrate/internal/logging"
)

// DependencyResolver orders records so that parent entries are written
// before their children. Depth is the number of RDN components in the
// record's target DN; shallower entries come first. Records whose DN
// cannot be derived or parsed keep their relative order at the end of the
// batch, where the write attempt will surface the real error.
type DependencyResolver struct {
	profile  *StreamProfile
	template string
	baseDN   string
	logger   logging.Logger
}

// NewDependencyResolver creates a resolver that derives DNs the same way
// the sink does, so ordering matches what will actually be written.
func NewDependencyResolver(profile *StreamProfile, template, baseDN string, logger logging.Logger) *DependencyResolver {
	return &DependencyResolver{
		profile:  profile,
		template: template,
		baseDN:   baseDN,
		logger:   logger.Named("resolver"),
	}
}

// Order returns the records sorted by ascending DN depth, along with the
// number of records whose DN resolved. The sort is stable: records of
// equal depth, and records without a resolvable DN, keep their input
// order.
func (r *DependencyResolver) Order(records []Record) ([]Record, int) {
	type ranked struct {
		record Record
		depth  int
	}

	const unresolvableDepth = 1 << 30

	items := make([]ranked, len(records))
	unresolvable := 0
	for i, record := range records {
		depth := unresolvableDepth
		dn, err := r.profile.DeriveDN(record, r.template, r.baseDN)
		if err == nil {
			if d := ldap.DNDepth(dn); d > 0 {
				depth = d
			}
		}
		if depth == unresolvableDepth {
			unresolvable++
		}
		items[i] = ranked{record: record, depth: depth}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].depth < items[j].depth
	})

	if unresolvable > 0 {
		r.logger.Debug("Some records had no resolvable DN and were deferred", map[string]any{
			"count": unresolvable,
		})
	}

	ordered := make([]Record, len(items))
	for i, item := range items {
		ordered[i] = item.record
	}
	return ordered, len(records) - unresolvable
}
