package sql

import (
	"fmt"
	"unicode"

	libinjection "github.com/corazawaf/libinjection-go"
)

// MaxIdentifierLength is the longest schema/table/column name accepted from
// a source catalog. PostgreSQL caps identifiers at 63 bytes and SQL Server
// at 128 characters; anything beyond that is not a plausible catalog name.
const MaxIdentifierLength = 128

// CheckIdentifier validates a schema, table, or column name read from a
// source database's catalog before it is interpolated into profiling SQL.
// Catalog names normally come from information_schema and are trustworthy,
// but a hostile source could plant an injection-shaped object name, so every
// name passes through libinjection and a charset sanity check first.
func CheckIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("empty identifier")
	}
	if len(name) > MaxIdentifierLength {
		return fmt.Errorf("identifier %q exceeds %d characters", name, MaxIdentifierLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("identifier %q contains control characters", name)
		}
	}

	if isSQLi, fingerprint := libinjection.IsSQLi(name); isSQLi {
		return fmt.Errorf("identifier %q matches SQL injection pattern %s", name, fingerprint)
	}

	return nil
}
