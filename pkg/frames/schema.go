package frames

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const inboundSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"type": "string", "enum": ["assistant", "error", "connection"]},
		"content": {"type": "string"},
		"status": {"type": "string"}
	}
}`

var inboundSchema = mustCompile(inboundSchemaJSON)

func mustCompile(schema string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("frames: invalid inbound schema: %v", err))
	}
	return s
}

// validateInbound checks raw against the inbound envelope schema.
func validateInbound(raw []byte) error {
	result, err := inboundSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("frame does not match envelope: %s", strings.Join(problems, "; "))
}
