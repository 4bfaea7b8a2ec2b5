package entities

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Speciality is a bit set of language-model domains
type Speciality uint8

const (
	SpecialityNone        Speciality = 0
	SpecialityGeneral     Speciality = 1 << 0
	SpecialityCoding      Speciality = 1 << 1
	SpecialityHomeControl Speciality = 1 << 2

	SpecialityAll = SpecialityGeneral | SpecialityCoding | SpecialityHomeControl
)

var specialityNames = []struct {
	flag Speciality
	name string
}{
	{SpecialityGeneral, "General"},
	{SpecialityCoding, "Coding"},
	{SpecialityHomeControl, "HomeControl"},
}

// SpecialityNames returns the names of the single specialities, in order
func SpecialityNames() []string {
	names := make([]string, 0, len(specialityNames))
	for _, s := range specialityNames {
		names = append(names, s.name)
	}
	return names
}

// Has reports whether s contains every flag in other
func (s Speciality) Has(other Speciality) bool {
	return s&other == other
}

// Singles splits s into its single-flag members
func (s Speciality) Singles() []Speciality {
	var out []Speciality
	for _, sn := range specialityNames {
		if s&sn.flag != 0 {
			out = append(out, sn.flag)
		}
	}
	return out
}

func (s Speciality) String() string {
	switch s {
	case SpecialityNone:
		return "None"
	case SpecialityAll:
		return "All"
	}
	var parts []string
	for _, sn := range specialityNames {
		if s&sn.flag != 0 {
			parts = append(parts, sn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseSpeciality parses a single speciality name, case-insensitive.
// "HomeControl", "home_control" and "home-control" are equivalent.
func ParseSpeciality(s string) (Speciality, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	switch key {
	case "none":
		return SpecialityNone, nil
	case "all":
		return SpecialityAll, nil
	case "general":
		return SpecialityGeneral, nil
	case "coding":
		return SpecialityCoding, nil
	case "homecontrol":
		return SpecialityHomeControl, nil
	}
	return SpecialityNone, fmt.Errorf("unknown speciality %q", s)
}

// ParseSpecialities parses a "," or "|" separated union of speciality names
func ParseSpecialities(s string) (Speciality, error) {
	var out Speciality
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' })
	if len(fields) == 0 {
		return SpecialityNone, fmt.Errorf("empty speciality list")
	}
	for _, f := range fields {
		sp, err := ParseSpeciality(f)
		if err != nil {
			return SpecialityNone, err
		}
		out |= sp
	}
	return out, nil
}

// MarshalJSON encodes the set as its list of names
func (s Speciality) MarshalJSON() ([]byte, error) {
	names := []string{}
	for _, single := range s.Singles() {
		names = append(names, single.String())
	}
	return json.Marshal(names)
}

// UnmarshalJSON accepts a list of names, a single name or the raw bit value
func (s *Speciality) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		*s = SpecialityNone
		for _, n := range names {
			sp, err := ParseSpeciality(n)
			if err != nil {
				return err
			}
			*s |= sp
		}
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		sp, err := ParseSpecialities(name)
		if err != nil {
			return err
		}
		*s = sp
		return nil
	}
	var bits uint8
	if err := json.Unmarshal(data, &bits); err != nil {
		return fmt.Errorf("invalid speciality: %s", string(data))
	}
	*s = Speciality(bits) & SpecialityAll
	return nil
}
