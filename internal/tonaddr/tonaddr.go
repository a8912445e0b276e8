// Package tonaddr compares TON account addresses regardless of spelling.
package tonaddr

import (
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

func parse(s string) (*address.Address, error) {
	if strings.Contains(s, ":") {
		return address.ParseRawAddr(s)
	}
	return address.ParseAddr(s)
}

// Normalize returns the raw workchain:hex form of a TON address so that raw
// and user-friendly spellings compare equal. Unparsable input is returned
// trimmed and upper-cased.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	addr, err := parse(s)
	if err != nil || addr == nil {
		return strings.ToUpper(s)
	}
	return fmt.Sprintf("%d:%X", addr.Workchain(), addr.Data())
}

// Equal reports whether a and b name the same non-empty address.
func Equal(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return na != "" && na == nb
}

// Valid reports whether s parses as a raw or user-friendly TON address.
func Valid(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := parse(s)
	return err == nil && addr != nil
}
