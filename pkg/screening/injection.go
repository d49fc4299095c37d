// Package screening checks free-text values arriving from extraction agents
// for SQL injection patterns before they are stored in the ledger.
package screening

import (
	"encoding/json"
	"fmt"
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// Finding describes one string value that libinjection flagged.
type Finding struct {
	Path        string // JSON path of the value, e.g. "properties.notes" or "tags[2]"
	Value       string
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckValue runs libinjection over a single string value. Returns nil when
// the value is clean.
func CheckValue(path, value string) *Finding {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &Finding{
		Path:        path,
		Value:       value,
		Fingerprint: string(fingerprint),
	}
}

// ScanJSON decodes raw and checks every string in it, keys included.
// Findings are ordered by path.
func ScanJSON(raw []byte) ([]Finding, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode payload for screening: %w", err)
	}
	return ScanValue(doc), nil
}

// ScanValue walks a decoded JSON value and checks every string in it.
// Numbers, booleans and nulls cannot carry injection and are skipped.
func ScanValue(v any) []Finding {
	var findings []Finding
	walk("", v, &findings)
	sort.Slice(findings, func(i, j int) bool { return findings[i].Path < findings[j].Path })
	return findings
}

func walk(path string, v any, findings *[]Finding) {
	switch val := v.(type) {
	case string:
		if f := CheckValue(path, val); f != nil {
			*findings = append(*findings, *f)
		}
	case map[string]any:
		for k, child := range val {
			childPath := joinPath(path, k)
			if f := CheckValue(childPath, k); f != nil {
				*findings = append(*findings, *f)
			}
			walk(childPath, child, findings)
		}
	case []any:
		for i, child := range val {
			walk(fmt.Sprintf("%s[%d]", path, i), child, findings)
		}
	}
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
