// Package sexp provides navigation helpers over parsed KiCad S-expressions,
// shared by the symbol library reader and the library inspector.
package sexp

// Property represents a key-value property of a symbol or footprint
type Property struct {
	Key   string
	Value string
	ID    int
}

// PropertyValue returns the value of the first property named key.
func PropertyValue(props []Property, key string) string {
	for _, p := range props {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}
