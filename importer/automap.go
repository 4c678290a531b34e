package importer

import (
	"fmt"
	"os"
	"strings"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// MappingRule proposes Field for every header Match accepts
type MappingRule struct {
	Field string
	Match func(header string) bool
}

// Contains builds a rule matching headers that contain any keyword,
// ignoring case and accents ("Preço", "preco" and "PRECO" all contain "preço").
func Contains(field string, keywords ...string) MappingRule {
	type keyword struct{ lower, folded string }
	kws := make([]keyword, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		kws = append(kws, keyword{lower: strings.ToLower(k), folded: slug.Make(k)})
	}

	return MappingRule{
		Field: field,
		Match: func(header string) bool {
			lower := strings.ToLower(header)
			folded := slug.Make(header)
			for _, k := range kws {
				if strings.Contains(lower, k.lower) {
					return true
				}
				if k.folded != "" && strings.Contains(folded, k.folded) {
					return true
				}
			}
			return false
		},
	}
}

// DefaultRules is evaluated top to bottom; the first match wins
var DefaultRules = []MappingRule{
	Contains("name", "nome", "name"),
	Contains("email", "email"),
	Contains("phone", "tele", "phone"),
	Contains("zip_code", "zip", "cep"),
	Contains("type", "type", "tipo"),
	Contains("bedrooms", "bed", "quarto"),
	Contains("bathrooms", "bath", "banheiro"),
	Contains("sqft", "sqft", "area"),
	Contains("people_count", "pessoa", "people"),
	Contains("service", "service", "serviço"),
	Contains("estimated_price", "estim", "price", "preço"),
	Contains("city", "cidade", "city"),
}

// AutoMap suggests a mapping from file headers to fields. Each header is
// offered to the rules once and claimed by the first matching rule; headers
// no rule matches stay unmapped. When two headers match the same field the
// later header wins.
func AutoMap(headers []string, rules []MappingRule) ColumnMapping {
	mapping := make(ColumnMapping)
	for _, header := range headers {
		for _, rule := range rules {
			if rule.Match(header) {
				mapping[rule.Field] = header
				break
			}
		}
	}
	return mapping
}

type rulesFile struct {
	Rules []struct {
		Field    string   `yaml:"field"`
		Contains []string `yaml:"contains"`
	} `yaml:"rules"`
}

// LoadRules reads extra rules from a YAML file and puts them ahead of base.
//
//	rules:
//	  - field: phone
//	    contains: [celular, mobile]
func LoadRules(path string, fields []FieldSpec, base []MappingRule) ([]MappingRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping rules: %w", err)
	}
	return ParseRules(data, fields, base)
}

// ParseRules is LoadRules for an in-memory document
func ParseRules(data []byte, fields []FieldSpec, base []MappingRule) ([]MappingRule, error) {
	var doc rulesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse mapping rules: %w", err)
	}

	rules := make([]MappingRule, 0, len(doc.Rules)+len(base))
	for i, r := range doc.Rules {
		if _, ok := fieldByKey(fields, r.Field); !ok {
			return nil, fmt.Errorf("mapping rule %d: unknown field %q", i+1, r.Field)
		}
		if len(r.Contains) == 0 {
			return nil, fmt.Errorf("mapping rule %d: no keywords for field %q", i+1, r.Field)
		}
		rules = append(rules, Contains(r.Field, r.Contains...))
	}
	return append(rules, base...), nil
}
