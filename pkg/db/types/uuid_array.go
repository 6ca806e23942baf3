package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// UUIDArray maps a Postgres uuid[] column. sqlite stores the same text
// literal, so tests round-trip through it unchanged.
type UUIDArray []uuid.UUID

func (a *UUIDArray) Scan(src any) error {
	var literal string
	switch v := src.(type) {
	case nil:
	case string:
		literal = v
	case []byte:
		literal = string(v)
	default:
		return fmt.Errorf("UUIDArray: unsupported Scan type %T", src)
	}
	parsed, err := parseArrayLiteral(literal)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value renders the {a,b} array literal; an empty array is "{}".
func (a UUIDArray) Value() (driver.Value, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(id.String())
	}
	b.WriteByte('}')
	return b.String(), nil
}

func parseArrayLiteral(s string) (UUIDArray, error) {
	body := strings.TrimSpace(s)
	body = strings.TrimSuffix(strings.TrimPrefix(body, "{"), "}")
	if strings.TrimSpace(body) == "" {
		return UUIDArray{}, nil
	}
	elems := strings.Split(body, ",")
	out := make(UUIDArray, 0, len(elems))
	for _, elem := range elems {
		elem = strings.Trim(strings.TrimSpace(elem), `"`)
		id, err := uuid.Parse(elem)
		if err != nil {
			return nil, fmt.Errorf("UUIDArray: parse %q: %w", elem, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// Contains reports whether id is already present.
func (a UUIDArray) Contains(id uuid.UUID) bool {
	return slices.Contains(a, id)
}

// With returns a with id appended unless it is already present. Order of
// first appearance is kept.
func (a UUIDArray) With(id uuid.UUID) UUIDArray {
	if a.Contains(id) {
		return a
	}
	return append(a, id)
}

// Clone returns an independent copy; nil clones to an empty array.
func (a UUIDArray) Clone() UUIDArray {
	out := make(UUIDArray, len(a))
	copy(out, a)
	return out
}
