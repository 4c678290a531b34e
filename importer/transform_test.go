package importer

import (
	"testing"
	"time"

	"cleaning-crm/parsers"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestTransform_Deterministic(t *testing.T) {
	row := parsers.Record{"Nome": "Ana Souza", "Email": "ana@example.com", "Quartos": "3", "Preço": "$1,250.50"}
	mapping := ColumnMapping{"name": "Nome", "email": "Email", "bedrooms": "Quartos", "estimated_price": "Preço"}

	first := Transform(row, mapping, fixedNow)
	second := Transform(row, mapping, fixedNow)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Transform not deterministic (-first +second):\n%s", diff)
	}

	want := NormalizedRecord{
		"status":          "new",
		"created_at":      fixedNow,
		"name":            "Ana Souza",
		"email":           "ana@example.com",
		"bedrooms":        3.0,
		"estimated_price": 1250.50,
	}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("unexpected record (-want +got):\n%s", diff)
	}
}

func TestTransform_NumericWithoutDigitsIsNil(t *testing.T) {
	for _, raw := range []string{"-", "", "N/A", ".", "  ", "$"} {
		record := Transform(parsers.Record{"Price": raw}, ColumnMapping{"estimated_price": "Price"}, fixedNow)
		v, present := record["estimated_price"]
		assert.True(t, present, "numeric field should be written as null for %q", raw)
		assert.Nil(t, v, "raw %q", raw)
	}
}

func TestTransform_TextCopiedVerbatim(t *testing.T) {
	row := parsers.Record{"Name": "  Ana  ", "City": ""}
	record := Transform(row, ColumnMapping{"name": "Name", "city": "City"}, fixedNow)

	assert.Equal(t, "  Ana  ", record["name"])
	assert.Equal(t, "", record["city"])
}

func TestTransform_IgnoredFieldsOmitted(t *testing.T) {
	row := parsers.Record{"Name": "Ana", "Phone": "555-0101"}
	record := Transform(row, ColumnMapping{"name": "Name", "phone": ""}, fixedNow)

	_, hasPhone := record["phone"]
	assert.False(t, hasPhone)
	assert.Len(t, record, 3)
}

func TestTransform_EverythingIgnored(t *testing.T) {
	row := parsers.Record{"Name": "Ana", "Email": "ana@example.com"}
	record := Transform(row, ColumnMapping{}, fixedNow)

	assert.Equal(t, NormalizedRecord{"status": "new", "created_at": fixedNow}, record)
}

func TestTransform_MissingColumnIsNil(t *testing.T) {
	record := Transform(parsers.Record{"Name": "Ana"}, ColumnMapping{"name": "Name", "city": "Cidade"}, fixedNow)

	v, present := record["city"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"$1,250.50", 1250.50, true},
		{"1250", 1250, true},
		{"2.5 baths", 2.5, true},
		{"1.2.3", 1.2, true},
		{".5", 0.5, true},
		{"3.", 3, true},
		{"-40", 40, true},
		{"R$ 300,00", 30000, true},
		{"N/A", 0, false},
		{"", 0, false},
		{"..", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseNumber(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseNumber(%q) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}
