package api

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var openapiDoc []byte

// GetSwagger loads and validates the embedded OpenAPI document.
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()

	swagger, err := loader.LoadFromData(openapiDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi document: %w", err)
	}

	err = swagger.Validate(loader.Context)
	if err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}

	return swagger, nil
}
