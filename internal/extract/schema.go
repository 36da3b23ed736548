package extract

import (
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const recordSchemaURL = "mem://medibill/billing_explanation.json"

const recordSchemaJSON = `{
  "type": "object",
  "properties": {
    "explanation": {"type": "string", "minLength": 1, "pattern": "\\S"},
    "insurance_status": {"type": "string"},
    "insurance_note": {"type": ["string", "null"]},
    "disclaimer": {"type": ["string", "null"]}
  }
}`

var recordSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(recordSchemaURL, strings.NewReader(recordSchemaJSON)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(recordSchemaURL)
}

// schemaField returns the top-level property a validation error points at
func schemaField(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return ""
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}

	field := strings.TrimPrefix(ve.InstanceLocation, "/")
	if idx := strings.IndexByte(field, '/'); idx >= 0 {
		field = field[:idx]
	}
	return field
}
