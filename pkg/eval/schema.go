package eval

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	//go:embed schema/expected_elements.schema.json
	expectedSchemaDoc []byte
	//go:embed schema/evaluation.schema.json
	evaluationSchemaDoc []byte
)

var (
	expectedSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
		return compileSchema("mem://expected_elements.schema.json", expectedSchemaDoc)
	})
	evaluationSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
		return compileSchema("mem://evaluation.schema.json", evaluationSchemaDoc)
	})
)

func compileSchema(url string, schema []byte) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// validateJSON decodes data and checks it against the schema returned by get.
func validateJSON(get func() (*jsonschema.Schema, error), data []byte) error {
	sch, err := get()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return sch.Validate(inst)
}
