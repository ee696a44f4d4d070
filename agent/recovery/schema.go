package recovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

var ErrSchemaMismatch = errors.New("oracle object does not match schema")

// SchemaValidator checks recovered objects against a schema reflected from a Go type.
type SchemaValidator struct {
	name   string
	schema *sjsonschema.Schema
}

// NewSchemaValidator reflects a JSON schema from sample (a pointer to a struct) and compiles it.
func NewSchemaValidator(name string, sample any) (*SchemaValidator, error) {
	r := new(jsonschema.Reflector)
	r.AllowAdditionalProperties = true
	r.DoNotReference = true

	s := r.Reflect(sample)
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", name, err)
	}

	var schemaDoc any
	if err := json.Unmarshal(data, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal %s schema: %w", name, err)
	}

	resource := name + ".json"
	c := sjsonschema.NewCompiler()
	if err := c.AddResource(resource, schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", resource, err)
	}
	sch, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", resource, err)
	}
	return &SchemaValidator{name: name, schema: sch}, nil
}

// MustSchemaValidator panics on reflection errors; used for package-level validators.
func MustSchemaValidator(name string, sample any) *SchemaValidator {
	v, err := NewSchemaValidator(name, sample)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate reports every leaf violation joined into a single error.
func (v *SchemaValidator) Validate(obj map[string]any) error {
	if err := v.schema.Validate(any(obj)); err != nil {
		var ve *sjsonschema.ValidationError
		if errors.As(err, &ve) {
			msgs := make([]string, 0, 4)
			for _, cause := range flattenValidationErrors(ve) {
				msgs = append(msgs, fmt.Sprintf("/%s: %v", strings.Join(cause.InstanceLocation, "/"), cause.ErrorKind))
			}
			return fmt.Errorf("%w: %s: %s", ErrSchemaMismatch, v.name, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %s: %v", ErrSchemaMismatch, v.name, err)
	}
	return nil
}

// DecodeValid recovers an object from raw, validates it, then decodes it into T.
func DecodeValid[T any](raw string, v *SchemaValidator) (T, error) {
	var out T
	res, err := Parse(raw)
	if err != nil {
		return out, err
	}
	if v != nil {
		if err := v.Validate(res.Object); err != nil {
			return out, err
		}
	}
	b, err := json.Marshal(res.Object)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("%w: decode %T: %v", ErrUnparseable, out, err)
	}
	return out, nil
}

func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}
