package entitystore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewNCName_ValidatesLexicalForm(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"hyperhamlet", true},
		{"Hyper-Hamlet.2", true},
		{"_internal", true},
		{"", false},
		{"2starts-with-digit", false},
		{"has space", false},
		{"has:colon", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := NewNCName(tt.input)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidValue)
			}
		})
	}
}

func Test_IRI_RDF_WrapsFullIRIsOnly(t *testing.T) {
	assert.Equal(t, "<https://example.org/x>", IRI("https://example.org/x").RDF())
	assert.Equal(t, "<urn:uuid:1234>", IRI("urn:uuid:1234").RDF())
	assert.Equal(t, "adm:HyperHamlet", IRI("adm:HyperHamlet").RDF())
}

func Test_IRI_RDF_WrapsSchemesWithoutAuthorityPart(t *testing.T) {
	assert.Equal(t, "<mailto:editor@example.org>", IRI("mailto:editor@example.org").RDF())
	assert.Equal(t, "<tel:+41-61-000-00-00>", IRI("tel:+41-61-000-00-00").RDF())
	assert.Equal(t, "<doi:10.1000/182>", IRI("doi:10.1000/182").RDF())
	assert.Equal(t, "<URN:uuid:1234>", IRI("URN:uuid:1234").RDF())
	assert.Equal(t, "dcterms:modified", IRI("dcterms:modified").RDF())
}

func Test_NewIRI_RejectsMalformedInput(t *testing.T) {
	for _, bad := range []string{"", "no-scheme", "has space:x", "has\"quote:x", "a<b:c"} {
		_, err := NewIRI(bad)
		assert.ErrorIs(t, err, ErrInvalidValue, bad)
	}
}

func Test_Timestamp_NormalizesToMicrosecondUTC(t *testing.T) {
	// setup
	loc := time.FixedZone("CET", 3600)
	ts := NewTimestamp(time.Date(2024, 3, 1, 13, 30, 0, 123456789, loc))

	// assert
	assert.Equal(t, time.UTC, ts.Time.Location())
	assert.Equal(t, 123456000, ts.Time.Nanosecond())

	parsed, err := ParseTimestamp(ts.String())
	require.NoError(t, err)
	assert.True(t, ts.Equal(parsed), "a written timestamp must compare equal when read back")
}

func Test_Date_Before_OrdersCivilDates(t *testing.T) {
	early, err := NewDate(2023, time.December, 31)
	require.NoError(t, err)
	late, err := NewDate(2024, time.January, 1)
	require.NoError(t, err)

	assert.True(t, early.Before(late))
	assert.False(t, late.Before(early))
	assert.False(t, early.Before(early))
}

func Test_NewDate_RejectsImpossibleDates(t *testing.T) {
	_, err := NewDate(2023, time.February, 30)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func Test_Text_RDF_EscapesSpecialCharacters(t *testing.T) {
	assert.Equal(t, `"line\nbreak \"quoted\""`, Text("line\nbreak \"quoted\"").RDF())
}

func Test_PrefixMap_ExpandAndShrink_RoundTrip(t *testing.T) {
	// setup
	p := DefaultPrefixes()
	p.Register("adm", "https://graphadm.org/admin#")

	// act + assert
	full, ok := p.Expand("adm:HyperHamlet")
	require.True(t, ok)
	assert.Equal(t, "https://graphadm.org/admin#HyperHamlet", full)

	q, ok := p.Shrink(full)
	require.True(t, ok)
	assert.Equal(t, QName("adm:HyperHamlet"), q)

	_, ok = p.Shrink("https://elsewhere.example/thing")
	assert.False(t, ok)
}

func Test_PrefixMap_Preamble_KeepsRegistrationOrder(t *testing.T) {
	// setup
	p := NewPrefixMap()
	p.Register("b", "https://example.org/b#")
	p.Register("a", "https://example.org/a#")

	// assert
	assert.Equal(t, "PREFIX b: <https://example.org/b#>\nPREFIX a: <https://example.org/a#>\n", p.Preamble())
}
