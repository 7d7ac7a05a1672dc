package observation

// Kind discriminates the typed values an observation set can hold.
type Kind int

const (
	KindNumber Kind = iota
	KindBool
	KindString
	KindStringSet
)

// Value is a tagged union of the observation value types. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Value struct {
	Kind      Kind
	Number    float64
	Bool      bool
	String    string
	StringSet []string
}

// NumberValue, BoolValue, StringValue and SetValue construct typed values.
func NumberValue(n float64) Value   { return Value{Kind: KindNumber, Number: n} }
func BoolValue(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func StringValue(s string) Value    { return Value{Kind: KindString, String: s} }
func SetValue(ss []string) Value    { return Value{Kind: KindStringSet, StringSet: ss} }

// Contains reports whether a set-valued observation contains s. It is false
// for non-set kinds.
func (v Value) Contains(s string) bool {
	if v.Kind != KindStringSet {
		return false
	}
	for _, member := range v.StringSet {
		if member == s {
			return true
		}
	}
	return false
}

// Set is a canonical observation set for one patient encounter. It is built
// once by Normalize and read-only afterwards.
type Set struct {
	ModuleCode string
	values     map[string]Value
}

// Get returns the value for key and whether it is present.
func (s *Set) Get(key string) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the present observation keys, in no particular order.
func (s *Set) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of recognised observations in the set.
func (s *Set) Len() int {
	return len(s.values)
}
