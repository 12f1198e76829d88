// Package forms holds the typed form-data record a permit application carries
// through validation and fee calculation.
package forms

// ValuationField is the well-known field carrying the declared construction
// cost in USD; tiered fees key off it.
const ValuationField = "valuation_usd"

// Kind discriminates a field value's representation.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindString
	KindNumber
)

// Value is a tagged string-or-number field value. Using a closed union instead
// of interface{} keeps rule evaluation free of type switches over open data.
type Value struct {
	kind Kind
	str  string
	num  float64
}

// String builds a string-valued field.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number builds a numeric field.
func Number(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// FromAny converts a decoded JSON value into a Value. Unsupported types map
// to the zero (absent) Value.
func FromAny(v any) Value {
	switch t := v.(type) {
	case string:
		return String(t)
	case float64:
		return Number(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	}
	return Value{}
}

// Kind returns the value's representation tag.
func (v Value) Kind() Kind {
	return v.kind
}

// AsString returns the string representation and whether the value is a string.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the numeric representation and whether the value is a number.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// IsEmpty reports whether the value is absent or a blank string.
func (v Value) IsEmpty() bool {
	return v.kind == KindAbsent || (v.kind == KindString && v.str == "")
}

// Data is the form payload evaluated against a permit type's rules.
type Data struct {
	Fields      map[string]Value
	Attachments map[string]string // attachment kind -> storage URI
}

// Field returns the named field's value; absent fields return a zero Value.
func (d Data) Field(name string) Value {
	return d.Fields[name]
}

// Valuation returns the declared valuation in USD, if present.
func (d Data) Valuation() (float64, bool) {
	return d.Field(ValuationField).AsNumber()
}

// HasAttachment reports whether an attachment of the given kind is present.
func (d Data) HasAttachment(kind string) bool {
	_, ok := d.Attachments[kind]
	return ok
}
