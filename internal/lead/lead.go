package lead

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// WebsiteFields lists the raw record fields that may carry a company website,
// in resolution order.
var WebsiteFields = []string{"website", "domain", "website_url", "url", "company_website", "company_domain"}

var nameFields = []string{"name", "company_name", "company"}

// Lead is the normalized company record used throughout enrichment. It is not
// modified once normalized.
type Lead struct {
	Index         int            `json:"index"`
	Name          string         `json:"name"`
	Industry      string         `json:"industry,omitempty"`
	Location      string         `json:"location,omitempty"`
	EmployeeCount string         `json:"employee_count,omitempty"`
	Description   string         `json:"description,omitempty"`
	Website       string         `json:"website,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// HasWebsite reports whether a website reference was resolved.
func (l Lead) HasWebsite() bool {
	return l.Website != ""
}

// DisplayName returns the lead name, falling back to the website.
func (l Lead) DisplayName() string {
	if l.Name != "" {
		return l.Name
	}
	if l.Website != "" {
		return l.Website
	}
	return fmt.Sprintf("lead #%d", l.Index)
}

// Normalize coerces a loosely shaped record into a Lead. The website is the
// first non-empty value among WebsiteFields.
func Normalize(index int, raw map[string]any) Lead {
	l := Lead{
		Index:         index,
		Name:          firstString(raw, nameFields...),
		Industry:      firstString(raw, "industry", "sector"),
		Location:      firstString(raw, "location", "city", "country"),
		EmployeeCount: firstString(raw, "employee_count", "employees", "company_size"),
		Description:   firstString(raw, "description", "short_description", "about"),
		Website:       firstString(raw, WebsiteFields...),
	}

	known := map[string]struct{}{}
	for _, group := range [][]string{nameFields, WebsiteFields, {"industry", "sector", "location", "city", "country",
		"employee_count", "employees", "company_size", "description", "short_description", "about"}} {
		for _, k := range group {
			known[k] = struct{}{}
		}
	}
	for k, v := range raw {
		if _, ok := known[k]; ok {
			continue
		}
		if l.Extra == nil {
			l.Extra = make(map[string]any)
		}
		l.Extra[k] = v
	}
	return l
}

// NormalizeAll normalizes records, assigning each its input position.
func NormalizeAll(records []map[string]any) []Lead {
	leads := make([]Lead, len(records))
	for i, r := range records {
		leads[i] = Normalize(i, r)
	}
	return leads
}

// Decode parses a JSON array of lead records.
func Decode(data []byte) ([]Lead, error) {
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding leads: %w", err)
	}
	return NormalizeAll(records), nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case json.Number:
			s = t.String()
		case int:
			s = strconv.Itoa(t)
		case bool:
			continue
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
