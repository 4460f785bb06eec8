package lineage

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// listKeys are wrapper keys models like to put around the mapping list.
var listKeys = []string{"lineage", "Lineage", "mappings", "data_lineage"}

// DecodeMappings turns an extracted block into mappings. It accepts a list of
// mappings, a single mapping object, or an object wrapping the list under
// one of listKeys. Mappings that name neither a source nor a target column
// are dropped; an empty result is an error.
func DecodeMappings(raw json.RawMessage) ([]Mapping, error) {
	doc := gjson.ParseBytes(raw)
	if doc.IsObject() {
		for _, key := range listKeys {
			if inner := doc.Get(key); inner.IsArray() {
				doc = inner
				break
			}
		}
	}

	var mappings []Mapping
	switch {
	case doc.IsArray():
		if err := json.Unmarshal([]byte(doc.Raw), &mappings); err != nil {
			return nil, errors.Wrap(err, "decode mapping list")
		}
	case doc.IsObject():
		var m Mapping
		if err := json.Unmarshal([]byte(doc.Raw), &m); err != nil {
			return nil, errors.Wrap(err, "decode mapping")
		}
		mappings = []Mapping{m}
	default:
		return nil, errors.Errorf("expected a JSON object or list, got %s", doc.Type)
	}

	out := mappings[:0]
	for _, m := range mappings {
		m = m.trimmed()
		if m.SourceColumn == "" && m.TargetColumn == "" {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, errors.New("no lineage mappings in block")
	}
	return out, nil
}

func (m Mapping) trimmed() Mapping {
	return Mapping{
		SourceDatabase: strings.TrimSpace(m.SourceDatabase),
		SourceTable:    strings.TrimSpace(m.SourceTable),
		SourceColumn:   strings.TrimSpace(m.SourceColumn),
		TargetDatabase: strings.TrimSpace(m.TargetDatabase),
		TargetTable:    strings.TrimSpace(m.TargetTable),
		TargetColumn:   strings.TrimSpace(m.TargetColumn),
		Transformation: strings.TrimSpace(m.Transformation),
	}
}
