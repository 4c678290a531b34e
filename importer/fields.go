// Package importer turns a user supplied delimited file into lead rows.
//
// The flow is Parser -> AutoMap -> user confirmed ColumnMapping -> Transform
// -> Sink, one fixed-size batch at a time, driven by an import Session.
package importer

// FieldSpec is one target column of the lead table
type FieldSpec struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// StatusNew is written on every imported lead
const StatusNew = "new"

// LeadFields lists the importable lead fields in display order
var LeadFields = []FieldSpec{
	{Key: "name", Label: "Name", Required: true},
	{Key: "email", Label: "Email"},
	{Key: "phone", Label: "Phone"},
	{Key: "zip_code", Label: "Zip Code"},
	{Key: "type", Label: "Type (One-time/Recurring)"},
	{Key: "bedrooms", Label: "Bedrooms"},
	{Key: "bathrooms", Label: "Bathrooms"},
	{Key: "sqft", Label: "Sqft"},
	{Key: "people_count", Label: "People"},
	{Key: "service", Label: "Service"},
	{Key: "estimated_price", Label: "Estimated Price"},
	{Key: "city", Label: "City"},
}

// numericFields are coerced to float (or nil) instead of copied verbatim
var numericFields = map[string]bool{
	"estimated_price": true,
	"bedrooms":        true,
	"bathrooms":       true,
	"sqft":            true,
	"people_count":    true,
}

// IsNumericField reports whether values for key are coerced to numbers
func IsNumericField(key string) bool {
	return numericFields[key]
}

// ColumnMapping maps a field key to the file column feeding it.
// A missing key or an empty column means the field is ignored.
type ColumnMapping map[string]string

// Clone returns an independent copy without ignored entries
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for field, column := range m {
		if column != "" {
			out[field] = column
		}
	}
	return out
}

func fieldByKey(fields []FieldSpec, key string) (FieldSpec, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}
