package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ValidateDNSyntax validates that a string is a properly formatted Distinguished Name.
func ValidateDNSyntax(dn string) error {
	if strings.TrimSpace(dn) == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	if _, err := ldap.ParseDN(dn); err != nil {
		return fmt.Errorf("invalid DN syntax: %w", err)
	}

	return nil
}

// DNDepth returns the number of RDN components in a DN. A depth of zero
// means the DN could not be parsed.
//
//	"dc=example,dc=org"        → 2
//	"cn=jdoe,ou=people,dc=org" → 3
func DNDepth(dn string) int {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return 0
	}
	return len(parsed.RDNs)
}

// ParentDN returns the DN of the entry's immediate parent, or the empty
// string for a root entry.
func ParentDN(dn string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	if len(parsed.RDNs) <= 1 {
		return "", nil
	}

	var rdns []string
	for _, rdn := range parsed.RDNs[1:] {
		var attrs []string
		for _, attr := range rdn.Attributes {
			attrs = append(attrs, fmt.Sprintf("%s=%s", attr.Type, EscapeDNValue(attr.Value)))
		}
		rdns = append(rdns, strings.Join(attrs, "+"))
	}

	return strings.Join(rdns, ","), nil
}

// NormalizeDN normalizes a DN to its canonical comparison form: attribute
// type descriptors lowercased, insignificant whitespace between components
// removed, values preserved as written.
func NormalizeDN(dn string) (string, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return "", nil
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	var rdns []string
	for _, rdn := range parsed.RDNs {
		var attrs []string
		for _, attr := range rdn.Attributes {
			attrs = append(attrs, fmt.Sprintf("%s=%s", strings.ToLower(attr.Type), EscapeDNValue(attr.Value)))
		}
		rdns = append(rdns, strings.Join(attrs, "+"))
	}

	return strings.Join(rdns, ","), nil
}

// ExtractRDNValue extracts the value of the first RDN component with the
// given attribute type. Extracting "cn" from "cn=jdoe,ou=people,dc=org"
// returns "jdoe".
func ExtractRDNValue(dn, attrType string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	want := strings.ToLower(attrType)
	for _, rdn := range parsed.RDNs {
		for _, attr := range rdn.Attributes {
			if strings.ToLower(attr.Type) == want {
				return attr.Value, nil
			}
		}
	}

	return "", fmt.Errorf("attribute type %q not found in DN %q", attrType, dn)
}

// EscapeDNValue escapes special characters in a DN attribute value according
// to RFC 4514: the characters , + " \ < > ; everywhere, leading #, and
// leading/trailing spaces.
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var b strings.Builder
	b.Grow(len(value) + 8)

	for i, r := range value {
		switch r {
		case ',', '+', '"', '\\', '<', '>', ';':
			b.WriteRune('\\')
			b.WriteRune(r)
		case '#':
			if i == 0 {
				b.WriteRune('\\')
			}
			b.WriteRune(r)
		case ' ':
			if i == 0 || i == len(value)-1 {
				b.WriteRune('\\')
			}
			b.WriteRune(r)
		case 0:
			b.WriteString("\\00")
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}
