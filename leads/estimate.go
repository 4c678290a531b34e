package leads

import "math"

// EstimateInput is what the quote calculator needs from a lead
type EstimateInput struct {
	Bedrooms  float64 `json:"bedrooms" binding:"gte=0"`
	Bathrooms float64 `json:"bathrooms" binding:"gte=0"`
	Sqft      float64 `json:"sqft" binding:"gte=0"`
	Service   string  `json:"service_type"`
}

// Estimate prices a cleaning: a base fee plus per-room and per-sqft amounts,
// scaled up for deep and move-in/out cleans and rounded up to the next 5.
func Estimate(in EstimateInput) float64 {
	price := 100.0
	price += in.Bedrooms * 25
	price += in.Bathrooms * 35
	price += in.Sqft * 0.08

	switch in.Service {
	case "deep":
		price *= 1.5
	case "move-in-out":
		price *= 2
	}

	return math.Ceil(price/5) * 5
}
