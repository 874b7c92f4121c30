package gallery

import (
	"database/sql/driver"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// StringSet is a set of strings persisted as a JSON array. It records which
// image basenames of a gallery are known uploaded.
type StringSet map[string]struct{}

// NewStringSet builds a set from the given members.
func NewStringSet(members ...string) StringSet {
	s := make(StringSet, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}

	return s
}

// Contains reports set membership.
func (s StringSet) Contains(v string) bool {
	_, ok := s[v]
	return ok
}

// Add inserts a member.
func (s StringSet) Add(v string) {
	s[v] = struct{}{}
}

// Remove drops a member.
func (s StringSet) Remove(v string) {
	delete(s, v)
}

// Clone returns a copy of the set.
func (s StringSet) Clone() StringSet {
	c := make(StringSet, len(s))
	for k := range s {
		c[k] = struct{}{}
	}

	return c
}

// Intersect keeps only members present in keep.
func (s StringSet) Intersect(keep StringSet) StringSet {
	c := StringSet{}

	for k := range s {
		if keep.Contains(k) {
			c[k] = struct{}{}
		}
	}

	return c
}

// Sorted returns the members in lexical order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// MarshalJSON implements json.Marshaler as a sorted array.
func (s StringSet) MarshalJSON() ([]byte, error) {
	//nolint:wrapcheck
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var members []string
	if err := json.Unmarshal(data, &members); err != nil {
		return errors.Wrap(err, "invalid string set")
	}

	*s = NewStringSet(members...)

	return nil
}

// Value implements driver.Valuer for database persistence.
func (s StringSet) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "error encoding string set")
	}

	return string(b), nil
}

// Scan implements sql.Scanner.
func (s *StringSet) Scan(value interface{}) error {
	if value == nil {
		*s = StringSet{}
		return nil
	}

	switch v := value.(type) {
	case string:
		if v == "" {
			*s = StringSet{}
			return nil
		}

		return s.UnmarshalJSON([]byte(v))
	case []byte:
		if len(v) == 0 {
			*s = StringSet{}
			return nil
		}

		return s.UnmarshalJSON(v)
	default:
		return errors.Errorf("unsupported string set column type %T", value)
	}
}
