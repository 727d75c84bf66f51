package lead

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// MaxRecords is the largest lead list accepted from a single call site.
const MaxRecords = 100

// recordsSchema requires an array of objects that each carry a name and at
// least one website-like field.
const recordsSchema = `{
  "type": "array",
  "minItems": 1,
  "maxItems": 100,
  "items": {
    "type": "object",
    "anyOf": [
      {"required": ["name"]},
      {"required": ["company_name"]},
      {"required": ["company"]}
    ],
    "allOf": [
      {"anyOf": [
        {"required": ["website"]},
        {"required": ["domain"]},
        {"required": ["website_url"]},
        {"required": ["url"]},
        {"required": ["company_website"]},
        {"required": ["company_domain"]}
      ]}
    ]
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(recordsSchema)

// Validate checks a raw JSON lead list before it is handed to enrichment.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validating leads: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid leads: %s", strings.Join(msgs, "; "))
}
