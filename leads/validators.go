package leads

import (
	"strings"

	"cleaning-crm/common"
)

// LeadInput is the body of POST /leads
type LeadInput struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	Address        string   `json:"address"`
	City           string   `json:"city"`
	ZipCode        string   `json:"zip_code"`
	Type           string   `json:"type"`
	Service        string   `json:"service"`
	Bedrooms       *float64 `json:"bedrooms"`
	Bathrooms      *float64 `json:"bathrooms"`
	Sqft           *float64 `json:"sqft"`
	PeopleCount    *float64 `json:"people_count"`
	Frequency      string   `json:"frequency"`
	Status         string   `json:"status"`
	EstimatedPrice *float64 `json:"estimated_price"`
	Notes          string   `json:"notes"`
	Source         string   `json:"source"`
}

// ValidateLead checks a lead typed in by hand. Imported rows do not go
// through here; the importer writes whatever the file holds.
func ValidateLead(in LeadInput) *common.RecordValidationResult {
	result := common.NewValidationResult(0)

	result.Add(common.ValidateRequired("name", strings.TrimSpace(in.Name)))

	if email := strings.TrimSpace(in.Email); email != "" && !common.ValidateEmail(email) {
		result.AddError("email", "Invalid email format")
	}

	if in.Status != "" {
		result.Add(common.ValidateEnum("status", in.Status, Statuses))
	}
	if in.Service != "" {
		result.Add(common.ValidateEnum("service", in.Service, ServiceTypes))
	}

	numbers := []struct {
		field string
		value *float64
	}{
		{"bedrooms", in.Bedrooms},
		{"bathrooms", in.Bathrooms},
		{"sqft", in.Sqft},
		{"people_count", in.PeopleCount},
		{"estimated_price", in.EstimatedPrice},
	}
	for _, n := range numbers {
		if n.value != nil && *n.value < 0 {
			result.AddError(n.field, "must not be negative")
		}
	}

	return result
}

// NormalizeLead trims text fields and fills the default status
func NormalizeLead(in LeadInput) LeadModel {
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = StatusNew
	}

	return LeadModel{
		Name:           strings.TrimSpace(in.Name),
		Email:          strings.TrimSpace(in.Email),
		Phone:          strings.TrimSpace(in.Phone),
		Address:        strings.TrimSpace(in.Address),
		City:           strings.TrimSpace(in.City),
		ZipCode:        strings.TrimSpace(in.ZipCode),
		Type:           strings.TrimSpace(in.Type),
		Service:        strings.TrimSpace(in.Service),
		Bedrooms:       in.Bedrooms,
		Bathrooms:      in.Bathrooms,
		Sqft:           in.Sqft,
		PeopleCount:    in.PeopleCount,
		Frequency:      strings.TrimSpace(in.Frequency),
		Status:         status,
		EstimatedPrice: in.EstimatedPrice,
		Notes:          in.Notes,
		Source:         strings.TrimSpace(in.Source),
	}
}
