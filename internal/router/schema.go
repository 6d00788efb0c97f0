package router

import "github.com/santhosh-tekuri/jsonschema/v5"

// Wire schema for inbound envelopes. Structural only: message_type is not
// constrained to the known set here, so an unknown type is classified as
// unrecognized rather than malformed.
const envelopeSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["message_type", "timestamp", "payload"],
	"properties": {
		"message_type": {"type": "string", "minLength": 1},
		"timestamp": {"type": "string"},
		"student_id": {"type": "string"},
		"session_id": {"type": "string"},
		"exam_id": {"type": "string"},
		"payload": {"type": "object"}
	}
}`

func compileEnvelopeSchema() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("envelope.schema.json", envelopeSchema)
}
