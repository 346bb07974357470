package migrate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ldapmigrate/ldapmigrate/internal/ldap"
)

// groupMemberPlaceholder satisfies the member requirement of groupOfNames
// for groups created before any of their members exist.
const groupMemberPlaceholder = "cn=placeholder,cn=migration"

// StreamProfile describes how records of one stream map onto directory
// entries: which attribute forms the RDN, which object classes a record
// gets when it carries none, and which attribute holds a mandatory
// placeholder value.
type StreamProfile struct {
	Name             string
	RDNAttribute     string
	ObjectClasses    []string
	Container        string
	PlaceholderAttrs map[string]string
}

var streamProfiles = map[string]*StreamProfile{
	"users": {
		Name:          "users",
		RDNAttribute:  "uid",
		ObjectClasses: []string{"inetOrgPerson", "organizationalPerson", "person", "top"},
		Container:     "ou=users",
	},
	"groups": {
		Name:          "groups",
		RDNAttribute:  "cn",
		ObjectClasses: []string{"groupOfNames", "top"},
		Container:     "ou=groups",
		PlaceholderAttrs: map[string]string{
			"member": groupMemberPlaceholder,
		},
	},
	"organizational_units": {
		Name:          "organizational_units",
		RDNAttribute:  "ou",
		ObjectClasses: []string{"organizationalUnit", "top"},
	},
}

var genericProfile = &StreamProfile{
	Name:          "generic",
	RDNAttribute:  "cn",
	ObjectClasses: []string{"top"},
}

// ProfileForStream returns the profile registered for the stream name, or
// the generic profile when the stream is unknown.
func ProfileForStream(stream string) *StreamProfile {
	if p, ok := streamProfiles[strings.ToLower(stream)]; ok {
		return p
	}
	return genericProfile
}

var templatePlaceholder = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// DeriveDN resolves the target DN for a record, in order of precedence:
// an explicit "dn" field, the configured template for the stream, then
// the profile's RDN attribute under its container and the base DN. RDN
// values are escaped per RFC 4514.
func (p *StreamProfile) DeriveDN(record Record, template, baseDN string) (string, error) {
	if dn, ok := record["dn"].(string); ok && dn != "" {
		return dn, nil
	}

	if template != "" {
		return expandDNTemplate(template, record, baseDN)
	}

	values := anyToStrings(record[p.RDNAttribute])
	if len(values) == 0 || values[0] == "" {
		return "", fmt.Errorf("record has no %q value to build a DN from", p.RDNAttribute)
	}
	rdn := p.RDNAttribute + "=" + ldap.EscapeDNValue(values[0])

	parts := []string{rdn}
	if p.Container != "" {
		parts = append(parts, p.Container)
	}
	if baseDN != "" {
		parts = append(parts, baseDN)
	}
	return strings.Join(parts, ","), nil
}

func expandDNTemplate(template string, record Record, baseDN string) (string, error) {
	var missing []string
	dn := templatePlaceholder.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		if name == "base_dn" {
			return baseDN
		}
		values := anyToStrings(record[name])
		if len(values) == 0 || values[0] == "" {
			missing = append(missing, name)
			return ""
		}
		return ldap.EscapeDNValue(values[0])
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("dn template references missing record fields: %s", strings.Join(missing, ", "))
	}
	return dn, nil
}

// BuildEntry converts a record into a directory entry under this profile:
// reserved fields are stripped, missing object classes and placeholder
// attributes are filled from the profile, and the DN comes from DeriveDN.
func (p *StreamProfile) BuildEntry(record Record, template, baseDN string) (*Entry, error) {
	dn, err := p.DeriveDN(record, template, baseDN)
	if err != nil {
		return nil, err
	}

	attrs := make(Attributes)
	for field, value := range record {
		if field == "dn" || reservedRecordFields[field] {
			continue
		}
		values := anyToStrings(value)
		if len(values) > 0 {
			attrs[field] = values
		}
	}

	if classes := record.ObjectClasses(); len(classes) > 0 {
		attrs.Set("objectClass", classes)
	} else {
		attrs.Set("objectClass", p.ObjectClasses)
	}
	for attr, placeholder := range p.PlaceholderAttrs {
		if !attrs.Has(attr) {
			attrs.Set(attr, []string{placeholder})
		}
	}

	return &Entry{DN: dn, Attributes: attrs}, nil
}
