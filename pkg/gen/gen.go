// Package gen provides utility functions for generating values.
package gen

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const sep = "|"

// Key joins parts into an unambiguous string. Each part is prefixed with its
// byte length, so a separator inside a part can never shift the boundaries.
func Key(parts ...string) string {
	var b strings.Builder

	for i, part := range parts {
		if i > 0 {
			b.WriteString(sep)
		}

		b.WriteString(strconv.Itoa(len(part)))
		b.WriteByte(':')
		b.WriteString(part)
	}

	return b.String()
}

// UUIDv5 generates a UUIDv5 in the URL namespace from the Key of parts.
func UUIDv5(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(Key(parts...))).String()
}
