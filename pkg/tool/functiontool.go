package tool

import (
	"context"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// FuncTool adapts a typed Go function into a Tool, deriving its input
// schema from the argument type via reflection, in the ADK-Go functiontool
// style, using invopop/jsonschema instead of hand-written schema literals.
type FuncTool[Args any] struct {
	name              string
	description       string
	requiresApproval  bool
	handler           func(ctx context.Context, args Args) (map[string]any, error)
	schema            map[string]any
}

// NewFuncTool builds a FuncTool. The schema is generated once, at
// construction, from the zero value of Args.
func NewFuncTool[Args any](name, description string, requiresApproval bool, handler func(ctx context.Context, args Args) (map[string]any, error)) *FuncTool[Args] {
	reflector := &jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(new(Args))
	raw := map[string]any{}
	if schema != nil {
		raw["type"] = "object"
		if schema.Properties != nil {
			props := map[string]any{}
			for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
				props[pair.Key] = pair.Value
			}
			raw["properties"] = props
		}
		if len(schema.Required) > 0 {
			raw["required"] = schema.Required
		}
	}
	return &FuncTool[Args]{
		name:             name,
		description:      description,
		requiresApproval: requiresApproval,
		handler:          handler,
		schema:           raw,
	}
}

func (f *FuncTool[Args]) Name() string                 { return f.name }
func (f *FuncTool[Args]) Description() string          { return f.description }
func (f *FuncTool[Args]) InputSchema() map[string]any  { return f.schema }
func (f *FuncTool[Args]) RequiresApproval() bool       { return f.requiresApproval }

func (f *FuncTool[Args]) Call(ctx context.Context, raw map[string]any) (map[string]any, error) {
	var args Args
	if err := decodeInto(raw, &args); err != nil {
		return nil, err
	}
	return f.handler(ctx, args)
}

// decodeInto performs a minimal map->struct assignment by field name
// (case-insensitive), avoiding a hard dependency on encoding/json's
// tag semantics for this narrow adapter use.
func decodeInto(raw map[string]any, out any) error {
	v := reflect.ValueOf(out).Elem()
	if v.Kind() == reflect.Map {
		v.Set(reflect.ValueOf(raw))
		return nil
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		for key, val := range raw {
			if !strings.EqualFold(key, field.Name) {
				continue
			}
			fv := reflect.ValueOf(val)
			if fv.Type().AssignableTo(field.Type) {
				v.Field(i).Set(fv)
			}
		}
	}
	return nil
}
