package entitystore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Value is the typed in-memory representation of an attribute value.
//
// RDF returns the value as a SPARQL term (IRI in angle brackets, prefixed
// name, or typed literal). Native returns a plain Go representation that
// survives JSON serialization and can be fed back into a Descriptor's
// coercion constructor, which is how cached entities are rebuilt.
type Value interface {
	Equal(other Value) bool
	RDF() string
	Native() any
	fmt.Stringer
}

// Term constrains the element types usable in observable containers.
type Term interface {
	comparable
	Value
}

// QName is a prefixed name such as "dcterms:modified". Predicates and graph
// names are always prefixed names; subjects and objects use IRI. QName also
// implements Value, so vocabulary terms can be attribute values and
// container elements.
type QName string

func (q QName) Equal(other Value) bool {
	o, ok := other.(QName)
	return ok && q == o
}

func (q QName) RDF() string {
	return string(q)
}

func (q QName) Native() any {
	return string(q)
}

func (q QName) String() string {
	return string(q)
}

/***** IRI *****/

// IRI identifies a subject or object term. The lexical form is either a full
// IRI ("https://...", "urn:uuid:...") or a prefixed name ("adm:HyperHamlet").
type IRI string

// NewIRI validates the lexical form of an IRI or prefixed name.
func NewIRI(s string) (IRI, error) {
	if s == "" || strings.ContainsAny(s, " \t\n\r\"<>") {
		return "", errors.Join(ErrInvalidValue, fmt.Errorf("not a valid IRI: %q", s))
	}
	if !strings.Contains(s, ":") {
		return "", errors.Join(ErrInvalidValue, fmt.Errorf("IRI without scheme or prefix: %q", s))
	}

	return IRI(s), nil
}

// NewURNIRI mints a random urn:uuid IRI for records constructed without an
// explicit subject.
func NewURNIRI() IRI {
	return IRI("urn:uuid:" + uuid.NewString())
}

func (v IRI) Equal(other Value) bool {
	o, ok := other.(IRI)
	return ok && v == o
}

// iriSchemes lists the absolute-IRI schemes that have no authority part, so
// they cannot be told apart from prefixed names by "://" alone.
var iriSchemes = map[string]struct{}{
	"urn": {}, "mailto": {}, "tel": {}, "doi": {}, "data": {}, "geo": {}, "news": {}, "mid": {},
}

func (v IRI) RDF() string {
	if strings.Contains(string(v), "://") {
		return "<" + string(v) + ">"
	}
	scheme, _, _ := strings.Cut(string(v), ":")
	if _, known := iriSchemes[strings.ToLower(scheme)]; known {
		return "<" + string(v) + ">"
	}

	return string(v) // prefixed name
}

func (v IRI) Native() any    { return string(v) }
func (v IRI) String() string { return string(v) }

/***** NCName *****/

// NCName is a non-colonized XML name, used for short identifiers such as a
// project short name or a user ID.
type NCName string

// NewNCName validates the lexical form of an NCName.
func NewNCName(s string) (NCName, error) {
	if s == "" {
		return "", errors.Join(ErrInvalidValue, errors.New("empty NCName"))
	}
	for i, r := range s {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i > 0 {
			ok = ok || (r >= '0' && r <= '9') || r == '-' || r == '.'
		}
		if !ok {
			return "", errors.Join(ErrInvalidValue, fmt.Errorf("not a valid NCName: %q", s))
		}
	}

	return NCName(s), nil
}

func (v NCName) Equal(other Value) bool {
	o, ok := other.(NCName)
	return ok && v == o
}

func (v NCName) RDF() string {
	return `"` + escapeLiteral(string(v)) + `"^^xsd:NCName`
}

func (v NCName) Native() any    { return string(v) }
func (v NCName) String() string { return string(v) }

/***** Text *****/

// Text is a plain string literal.
type Text string

func (v Text) Equal(other Value) bool {
	o, ok := other.(Text)
	return ok && v == o
}

func (v Text) RDF() string {
	return `"` + escapeLiteral(string(v)) + `"`
}

func (v Text) Native() any    { return string(v) }
func (v Text) String() string { return string(v) }

/***** Boolean *****/

type Boolean bool

func (v Boolean) Equal(other Value) bool {
	o, ok := other.(Boolean)
	return ok && v == o
}

func (v Boolean) RDF() string {
	if v {
		return `"true"^^xsd:boolean`
	}

	return `"false"^^xsd:boolean`
}

func (v Boolean) Native() any { return bool(v) }

func (v Boolean) String() string {
	return fmt.Sprintf("%t", bool(v))
}

/***** Timestamp *****/

const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Timestamp is an xsd:dateTime value. It is normalized to UTC with
// microsecond precision so that a value written to the store compares equal
// to the same value read back.
type Timestamp struct {
	Time time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Microsecond)}
}

func TimestampNow() Timestamp {
	return NewTimestamp(time.Now())
}

// ParseTimestamp parses the lexical form of an xsd:dateTime.
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Timestamp{}, errors.Join(ErrInvalidValue, err)
	}

	return NewTimestamp(t), nil
}

func (v Timestamp) Equal(other Value) bool {
	o, ok := other.(Timestamp)
	return ok && v.Time.Equal(o.Time)
}

func (v Timestamp) RDF() string {
	return `"` + v.Time.Format(timestampLayout) + `"^^xsd:dateTime`
}

func (v Timestamp) Native() any { return v.Time.Format(timestampLayout) }

func (v Timestamp) String() string {
	return v.Time.Format(timestampLayout)
}

func (v Timestamp) IsZero() bool {
	return v.Time.IsZero()
}

/***** Date *****/

const dateLayout = "2006-01-02"

// Date is an xsd:date value (a civil date without a time component).
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) (Date, error) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Date{}, errors.Join(ErrInvalidValue, fmt.Errorf("not a valid date: %04d-%02d-%02d", year, month, day))
	}

	return Date{Year: year, Month: month, Day: day}, nil
}

// ParseDate parses the lexical form of an xsd:date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, errors.Join(ErrInvalidValue, err)
	}

	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (v Date) Equal(other Value) bool {
	o, ok := other.(Date)
	return ok && v == o
}

func (v Date) Before(other Date) bool {
	if v.Year != other.Year {
		return v.Year < other.Year
	}
	if v.Month != other.Month {
		return v.Month < other.Month
	}

	return v.Day < other.Day
}

func (v Date) RDF() string {
	return `"` + v.String() + `"^^xsd:date`
}

func (v Date) Native() any { return v.String() }

func (v Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", v.Year, int(v.Month), v.Day)
}

/***** helpers *****/

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}
