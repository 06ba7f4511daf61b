package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/fastconfig/pkg/schema"
)

// SchemaChecker verifies that schema definitions attached to configs are
// well-formed JSON Schema documents. Compiled schemas are cached by text.
// It is safe for concurrent use.
type SchemaChecker struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewSchemaChecker creates a SchemaChecker.
func NewSchemaChecker() *SchemaChecker {
	return &SchemaChecker{cache: make(map[string]*jsonschema.Schema)}
}

// Check compiles text as a JSON Schema. Empty text is accepted.
func (c *SchemaChecker) Check(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if _, err := c.getOrCompile(text); err != nil {
		return toSchemaError(err)
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (c *SchemaChecker) getOrCompile(text string) (*jsonschema.Schema, error) {
	c.mu.RLock()
	if cached, ok := c.cache[text]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := c.cache[text]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := fmt.Sprintf("fastconfig://schema/%d", len(c.cache))
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}

	c.cache[text] = compiled
	return compiled, nil
}

// toSchemaError converts a compile failure into a BAD_REQUEST error listing
// the meta-schema violations, when there are any.
func toSchemaError(err error) *schema.Error {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeBadRequest, "invalid schema_def").WithCause(err)
	}
	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeBadRequest, "invalid schema_def").WithCause(err)
	}
	return schema.NewErrorf(schema.ErrCodeBadRequest, "invalid schema_def: %s", violations[0]).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
