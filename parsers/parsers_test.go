package parsers

import (
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParseCSV_ValidData(t *testing.T) {
	csvData := `name,email,phone,city
Ana Souza,ana@example.com,555-0101,Charleston
Bob Lee,bob@example.com,555-0102,Summerville`

	headers, records, errs, err := ParseCSV(context.Background(), strings.NewReader(csvData), Options{})
	require.NoError(t, err)

	var allRecords []Record
	for record := range records {
		allRecords = append(allRecords, record)
	}

	var allErrors []error
	for err := range errs {
		allErrors = append(allErrors, err)
	}

	assert.Equal(t, []string{"name", "email", "phone", "city"}, headers)
	assert.Len(t, allRecords, 2, "Should parse 2 records")
	assert.Len(t, allErrors, 0, "Should have no errors")

	assert.Equal(t, "Ana Souza", allRecords[0]["name"])
	assert.Equal(t, "ana@example.com", allRecords[0]["email"])
	assert.Equal(t, "Summerville", allRecords[1]["city"])
}

func TestParseCSV_EmptyFile(t *testing.T) {
	_, _, _, err := ParseCSV(context.Background(), strings.NewReader(""), Options{})
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestParseCSV_MalformedRowIsReportedAndSkipped(t *testing.T) {
	csvData := "name,email\nAna,ana@example.com\nBo\"b,bob@example.com\nCarl,carl@example.com\n"

	_, records, errs, err := ParseCSV(context.Background(), strings.NewReader(csvData), Options{})
	require.NoError(t, err)

	var allErrors []error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for err := range errs {
			allErrors = append(allErrors, err)
		}
	}()

	var names []string
	for record := range records {
		names = append(names, record["name"])
	}
	<-done

	assert.Equal(t, []string{"Ana", "Carl"}, names)
	require.Len(t, allErrors, 1)
	assert.True(t, errors.Is(allErrors[0], csv.ErrBareQuote))
}

func TestParseCSV_CancelStopsStream(t *testing.T) {
	var b strings.Builder
	b.WriteString("name\n")
	for i := 0; i < 1000; i++ {
		b.WriteString("lead\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, records, errs, err := ParseCSV(ctx, strings.NewReader(b.String()), Options{})
	require.NoError(t, err)

	<-records
	cancel()

	// Drain; goleak in TestMain fails the run if the goroutine survives
	for range records {
	}
	for range errs {
	}
}

func TestReadCSV_SkipsBlankLines(t *testing.T) {
	csvData := "name,city\n\nAna,Charleston\n\n\nBob,Summerville\n\n"

	table, err := ReadCSV(context.Background(), strings.NewReader(csvData), Options{})
	require.NoError(t, err)

	assert.Len(t, table.Rows, 2)
	assert.Equal(t, "Bob", table.Rows[1]["name"])
}

func TestReadCSV_MissingValues(t *testing.T) {
	csvData := `name,email,city
Ana,ana@example.com
Bob,bob@example.com,Summerville`

	table, err := ReadCSV(context.Background(), strings.NewReader(csvData), Options{})
	require.NoError(t, err)

	assert.Len(t, table.Rows, 2)
	assert.Equal(t, "", table.Rows[0]["city"], "Missing value should be empty string")
	assert.Equal(t, "Summerville", table.Rows[1]["city"])
}

func TestReadCSV_WithCommasInValues(t *testing.T) {
	csvData := `name,notes
"Souza, Ana","Deep clean, 2 dogs"
Bob,"Pets: none"`

	table, err := ReadCSV(context.Background(), strings.NewReader(csvData), Options{})
	require.NoError(t, err)

	assert.Len(t, table.Rows, 2)
	assert.Equal(t, "Souza, Ana", table.Rows[0]["name"])
	assert.Equal(t, "Deep clean, 2 dogs", table.Rows[0]["notes"])
}

func TestReadCSV_MalformedFileFails(t *testing.T) {
	csvData := "name,email\nAna,ana@example.com\nBo\"b,bob@example.com\n"

	table, err := ReadCSV(context.Background(), strings.NewReader(csvData), Options{})
	assert.Error(t, err)
	assert.Nil(t, table, "no partial table on parse errors")
}

func TestReadCSV_LazyQuotesTolerated(t *testing.T) {
	csvData := "name,email\nBo\"b,bob@example.com\n"

	table, err := ReadCSV(context.Background(), strings.NewReader(csvData), Options{LazyQuotes: true})
	require.NoError(t, err)
	assert.Equal(t, `Bo"b`, table.Rows[0]["name"])
}

func TestReadCSV_LazyQuotesStillRejectUnterminatedQuote(t *testing.T) {
	csvData := "name,notes\nAna,5\" wide window\n\"Bob,never closed\n"

	table, err := ReadCSV(context.Background(), strings.NewReader(csvData), Options{LazyQuotes: true})
	assert.ErrorIs(t, err, csv.ErrQuote)
	assert.Nil(t, table)

	table, err = PreviewCSV(context.Background(), strings.NewReader("name,notes\nAna,5\" wide window\n"), 5, Options{LazyQuotes: true})
	require.NoError(t, err)
	assert.Equal(t, `5" wide window`, table.Rows[0]["notes"])
}

func TestUnterminatedQuote(t *testing.T) {
	tests := []struct {
		data string
		want bool
	}{
		{"a,b\n1,2\n", false},
		{"a,b\n\"1,2\n", true},
		{"a,b\n\"1\",2\n", false},
		{"a,b\n\"say \"\"hi\"\"\",2\n", false},
		{"a,b\n5\" wide,2\n", false},
		{"a;b\n\"x;y\";2\n", false},
		{"a,b\n\"x\"y,2\n", true},
	}

	for _, tt := range tests {
		comma := ','
		if strings.Contains(tt.data, ";") {
			comma = ';'
		}
		if got := unterminatedQuote(tt.data, comma); got != tt.want {
			t.Errorf("unterminatedQuote(%q) = %v, want %v", tt.data, got, tt.want)
		}
	}
}

func TestReadCSV_Semicolon(t *testing.T) {
	csvData := "Nome;Cidade\nAna;Charleston\n"

	table, err := ReadCSV(context.Background(), strings.NewReader(csvData), Options{Comma: ';'})
	require.NoError(t, err)

	assert.Equal(t, []string{"Nome", "Cidade"}, table.Headers)
	assert.Equal(t, "Charleston", table.Rows[0]["Cidade"])
}

func TestReadCSV_HeadersNormalized(t *testing.T) {
	csvData := "\ufeff Name ,Phone,Phone\nAna,1,2\n"

	table, err := ReadCSV(context.Background(), strings.NewReader(csvData), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Phone", "Phone_1"}, table.Headers)
	assert.Equal(t, "2", table.Rows[0]["Phone_1"])
}

func TestPreviewCSV_LimitsRows(t *testing.T) {
	var b strings.Builder
	b.WriteString("name,email\n")
	for i := 0; i < 20; i++ {
		b.WriteString("lead,lead@example.com\n")
	}
	// a malformed row past the preview window does not fail the preview
	b.WriteString("Bo\"b,bob@example.com\n")

	table, err := PreviewCSV(context.Background(), strings.NewReader(b.String()), 5, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "email"}, table.Headers)
	assert.Len(t, table.Rows, 5)
}

func TestPreviewCSV_HeaderOnly(t *testing.T) {
	table, err := PreviewCSV(context.Background(), strings.NewReader("name,email\n"), 5, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "email"}, table.Headers)
	assert.Empty(t, table.Rows)
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in   string
		want rune
	}{
		{"", ','},
		{"comma", ','},
		{";", ';'},
		{"tab", '\t'},
		{"\\t", '\t'},
		{"pipe", '|'},
	}
	for _, tt := range tests {
		got, err := ParseDelimiter(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseDelimiter("#")
	assert.Error(t, err)
}
