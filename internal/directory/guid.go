package directory

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Active Directory stores objectGUID in a mixed-endian layout: the first
// three fields are little-endian, the last eight bytes big-endian.

const guidBytesLength = 16

var hyphenatedGUIDRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// GUIDBytesToString converts Active Directory GUID bytes to the standard
// hyphenated string form.
func GUIDBytesToString(guidBytes []byte) (string, error) {
	if len(guidBytes) != guidBytesLength {
		return "", fmt.Errorf("invalid GUID byte length: expected %d, got %d", guidBytesLength, len(guidBytes))
	}

	standard := make([]byte, guidBytesLength)

	standard[0] = guidBytes[3]
	standard[1] = guidBytes[2]
	standard[2] = guidBytes[1]
	standard[3] = guidBytes[0]

	standard[4] = guidBytes[5]
	standard[5] = guidBytes[4]

	standard[6] = guidBytes[7]
	standard[7] = guidBytes[6]

	copy(standard[8:], guidBytes[8:])

	h := hex.EncodeToString(standard)
	return fmt.Sprintf("%s-%s-%s-%s-%s", h[0:8], h[8:12], h[12:16], h[16:20], h[20:32]), nil
}

// StringToGUIDBytes converts a hyphenated GUID string to Active Directory
// byte order.
func StringToGUIDBytes(guid string) ([]byte, error) {
	guid = strings.ToLower(strings.TrimSpace(guid))
	if !hyphenatedGUIDRegex.MatchString(guid) {
		return nil, fmt.Errorf("invalid GUID format: %s", guid)
	}

	raw, err := hex.DecodeString(strings.ReplaceAll(guid, "-", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode GUID hex: %w", err)
	}

	ad := make([]byte, guidBytesLength)

	ad[0] = raw[3]
	ad[1] = raw[2]
	ad[2] = raw[1]
	ad[3] = raw[0]

	ad[4] = raw[5]
	ad[5] = raw[4]

	ad[6] = raw[7]
	ad[7] = raw[6]

	copy(ad[8:], raw[8:])

	return ad, nil
}

// GUIDFilter builds a search filter matching an entry by its immutable id.
// Active Directory requires the binary form; entryUUID matches as a string.
func (c Config) GUIDFilter(guid string) (string, error) {
	if c.Flavor == FlavorActiveDirectory {
		b, err := StringToGUIDBytes(guid)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(objectGUID=%s)", ldap.EscapeFilter(string(b))), nil
	}
	return fmt.Sprintf("(entryUUID=%s)", ldap.EscapeFilter(guid)), nil
}
