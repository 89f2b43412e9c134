package manifest

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "manifest.schema.json"

//go:embed manifest.schema.json
var schemaData []byte

var (
	manifestSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func compileSchema() error {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaData))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal manifest schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add manifest schema resource: %w", err)
			return
		}
		manifestSchema, err = compiler.Compile(schemaURL)
		if err != nil {
			compileErr = fmt.Errorf("compile manifest schema: %w", err)
		}
	})
	return compileErr
}

// ValidateJSON checks a JSON manifest against the embedded schema.
func ValidateJSON(data []byte) error {
	if err := compileSchema(); err != nil {
		return err
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := manifestSchema.Validate(v); err != nil {
		return fmt.Errorf("manifest validation failed: %w", err)
	}
	return nil
}
