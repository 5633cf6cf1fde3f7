package protocol

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// BlockMetadata documents the header object of a block. Agents may add
// extra keys; they are preserved in Message.Meta.
type BlockMetadata struct {
	To   string `json:"to" jsonschema:"title=Recipient,enum=PLANNER,enum=EXECUTER,description=Party the block is addressed to"`
	Type string `json:"type" jsonschema:"title=Kind,enum=plan,enum=result,enum=status,enum=error,enum=complete,enum=continue,enum=revision"`
	ID   string `json:"id" jsonschema:"title=Correlation id,description=Task id optionally suffixed per round (for example t1-R2)"`
}

// MetadataSchema returns the JSON schema of BlockMetadata for agent primers.
func MetadataSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&BlockMetadata{})
	schema.Title = "POLI:MSG block metadata"
	return json.MarshalIndent(schema, "", "  ")
}
