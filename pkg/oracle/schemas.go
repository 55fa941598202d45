package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const commonSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["mission_id", "outcome", "progress", "contributors"],
  "properties": {
    "mission_id": {"type": "string", "minLength": 1},
    "outcome": {"enum": ["success", "partial_success", "failure"]},
    "progress": {"type": "number", "minimum": 0},
    "contributors": {"type": "array", "minItems": 1, "items": {"type": "string"}},
    "capabilities": {"type": "array", "items": {"type": "string"}}
  }
}`

var typeSchemas = map[string]string{
	"web_development": `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "allOf": [{"$ref": "https://dao.schemas.local/deliverables/common.schema.json"}],
  "properties": {
    "url": {"type": "string", "format": "uri"},
    "repository": {"type": "string"}
  }
}`,
	"data_analysis": `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "allOf": [{"$ref": "https://dao.schemas.local/deliverables/common.schema.json"}],
  "properties": {
    "dataset": {"type": "string"},
    "methodology": {"type": "string"},
    "charts": {"type": "array"},
    "insights": {"type": "array", "items": {"type": "string"}},
    "code": {"type": "string"}
  }
}`,
}

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource("https://dao.schemas.local/deliverables/common.schema.json", strings.NewReader(commonSchema)); err != nil {
		return nil, fmt.Errorf("deliverable schema load failed: %w", err)
	}
	out := make(map[string]*jsonschema.Schema, len(typeSchemas))
	for missionType, schema := range typeSchemas {
		url := fmt.Sprintf("https://dao.schemas.local/deliverables/%s.schema.json", missionType)
		if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
			return nil, fmt.Errorf("deliverable schema load failed: %w", err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("deliverable schema compile failed: %w", err)
		}
		out[missionType] = compiled
	}
	return out, nil
}

// validate checks deliverables after a JSON round trip, since the
// validator only understands decoded JSON values.
func validate(schema *jsonschema.Schema, deliverables map[string]any) error {
	raw, err := json.Marshal(deliverables)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDeliverables, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDeliverables, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDeliverables, err)
	}
	return nil
}
