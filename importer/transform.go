package importer

import (
	"strconv"
	"strings"
	"time"

	"cleaning-crm/parsers"
)

// NormalizedRecord is one lead row as handed to the Sink
type NormalizedRecord map[string]interface{}

// Transform builds the record for one source row. Ignored fields are left
// out so the store's defaults apply; a mapped column the row does not carry
// becomes nil. Same inputs always give the same record.
func Transform(row parsers.Record, mapping ColumnMapping, now time.Time) NormalizedRecord {
	record := NormalizedRecord{
		"status":     StatusNew,
		"created_at": now,
	}

	for field, column := range mapping {
		if column == "" {
			continue
		}

		raw, ok := row[column]
		if !ok {
			record[field] = nil
			continue
		}

		if IsNumericField(field) {
			if v, ok := ParseNumber(raw); ok {
				record[field] = v
			} else {
				record[field] = nil
			}
			continue
		}

		record[field] = raw
	}

	return record
}

// ParseNumber keeps only digits and dots, then reads the longest leading
// decimal ("$1,250.50" -> 1250.5, "1.2.3" -> 1.2). ok is false when no digit
// survives the cleanup.
func ParseNumber(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	clean := b.String()

	end, digits, seenDot := 0, 0, false
	for i := 0; i < len(clean); i++ {
		if clean[i] == '.' {
			if seenDot {
				break
			}
			seenDot = true
		} else {
			digits++
		}
		end = i + 1
	}
	if digits == 0 {
		return 0, false
	}

	v, err := strconv.ParseFloat(clean[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
