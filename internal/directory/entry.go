package directory

import (
	"strconv"

	"github.com/go-ldap/ldap/v3"
)

// userAccountControl bit for a disabled Active Directory account
const accountDisableFlag = 0x2

// Entry is a directory entry detached from its connection. Attribute values
// keep their server order; scalar reads take the first value.
type Entry struct {
	DN         string
	ObjectGUID string
	Attributes map[string][]string

	raw map[string][]byte
}

// NewEntry builds an Entry from explicit attributes, mainly for tests
func NewEntry(dn string, attrs map[string][]string) *Entry {
	return &Entry{
		DN:         dn,
		Attributes: attrs,
		raw:        make(map[string][]byte),
	}
}

// entryFrom converts a go-ldap search result entry
func entryFrom(le *ldap.Entry, guidAttr string) *Entry {
	e := &Entry{
		DN:         le.DN,
		Attributes: make(map[string][]string, len(le.Attributes)),
		raw:        make(map[string][]byte),
	}
	for _, attr := range le.Attributes {
		e.Attributes[attr.Name] = attr.Values
		if len(attr.ByteValues) > 0 {
			e.raw[attr.Name] = attr.ByteValues[0]
		}
	}

	if guidAttr == "objectGUID" {
		if b := le.GetRawAttributeValue(guidAttr); len(b) == guidBytesLength {
			if s, err := GUIDBytesToString(b); err == nil {
				e.ObjectGUID = s
			}
		}
	} else {
		e.ObjectGUID = le.GetAttributeValue(guidAttr)
	}

	return e
}

// First returns the first value of a multi-valued attribute, or ""
func (e *Entry) First(attr string) string {
	if vals, ok := e.Attributes[attr]; ok && len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Values returns all values of an attribute
func (e *Entry) Values(attr string) []string {
	return e.Attributes[attr]
}

// Raw returns the first raw byte value of an attribute. Needed for binary
// attributes such as objectSid and thumbnailPhoto.
func (e *Entry) Raw(attr string) []byte {
	if b, ok := e.raw[attr]; ok {
		return b
	}
	// Fall back to the string form for entries built without raw data
	if v := e.First(attr); v != "" {
		return []byte(v)
	}
	return nil
}

// SetRaw records a raw attribute value, mainly for tests
func (e *Entry) SetRaw(attr string, value []byte) {
	if e.raw == nil {
		e.raw = make(map[string][]byte)
	}
	e.raw[attr] = value
}

// AccountDisabled reports whether the entry's account is disabled. Only
// Active Directory publishes this via userAccountControl; other flavors
// return false.
func (e *Entry) AccountDisabled() bool {
	uac := e.First("userAccountControl")
	if uac == "" {
		return false
	}
	v, err := strconv.Atoi(uac)
	if err != nil {
		return false
	}
	return v&accountDisableFlag != 0
}
