package introspection

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gqltp "github.com/hanpama/graphgate/internal/gqltp"
	schema "github.com/hanpama/graphgate/internal/schema"
)

// Query is the introspection operation sent to backends. It requests the
// full type system including descriptions and deprecations.
const Query = `query IntrospectSchema {
  __schema {
    description
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types {
      ...FullType
    }
    directives {
      name
      description
      isRepeatable
      locations
      args(includeDeprecated: true) { ...InputValue }
    }
  }
}

fragment FullType on __Type {
  kind
  name
  description
  fields(includeDeprecated: true) {
    name
    description
    args(includeDeprecated: true) { ...InputValue }
    type { ...TypeRef }
    isDeprecated
    deprecationReason
  }
  inputFields(includeDeprecated: true) { ...InputValue }
  interfaces { ...TypeRef }
  enumValues(includeDeprecated: true) {
    name
    description
    isDeprecated
    deprecationReason
  }
  possibleTypes { ...TypeRef }
}

fragment InputValue on __InputValue {
  name
  description
  type { ...TypeRef }
  defaultValue
  isDeprecated
  deprecationReason
}

fragment TypeRef on __Type {
  kind
  name
  ofType {
    kind
    name
    ofType {
      kind
      name
      ofType {
        kind
        name
        ofType {
          kind
          name
          ofType {
            kind
            name
            ofType {
              kind
              name
              ofType {
                kind
                name
              }
            }
          }
        }
      }
    }
  }
}`

// Client fetches backend schemas over the GraphQL transport.
type Client struct {
	transport *gqltp.Client
}

// NewClient creates an introspection client on top of the given transport.
func NewClient(t *gqltp.Client) *Client {
	return &Client{transport: t}
}

// Fetch runs the introspection query against the backend at url and converts
// the result into a schema. Headers are the backend's default request headers
// and may be nil. Errors always name the backend.
func (c *Client) Fetch(ctx context.Context, backend, url string, headers map[string]string) (*schema.Schema, error) {
	resp, err := c.transport.Do(ctx, gqltp.Request{
		Backend:       backend,
		URL:           url,
		Query:         Query,
		OperationName: "IntrospectSchema",
		OperationType: "query",
		Headers:       headers,
	})
	if err != nil {
		return nil, fmt.Errorf("introspecting backend %s: %w", backend, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("introspecting backend %s: %s", backend, resp.Errors[0].Message)
	}

	data, ok := resp.Data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("introspecting backend %s: response has no data", backend)
	}
	rawSchema, ok := data["__schema"]
	if !ok || rawSchema == nil {
		return nil, fmt.Errorf("introspecting backend %s: response has no __schema", backend)
	}

	// Round-trip through JSON so the nested maps decode into typed nodes.
	encoded, err := json.Marshal(rawSchema)
	if err != nil {
		return nil, fmt.Errorf("introspecting backend %s: %w", backend, err)
	}
	var js jsonSchema
	if err := json.Unmarshal(encoded, &js); err != nil {
		return nil, fmt.Errorf("introspecting backend %s: malformed introspection result: %w", backend, err)
	}

	sch, err := js.toSchema()
	if err != nil {
		return nil, fmt.Errorf("introspecting backend %s: %w", backend, err)
	}
	return sch, nil
}

// --- wire model ---

type jsonSchema struct {
	Description      string          `json:"description"`
	QueryType        *jsonNamed      `json:"queryType"`
	MutationType     *jsonNamed      `json:"mutationType"`
	SubscriptionType *jsonNamed      `json:"subscriptionType"`
	Types            []jsonType      `json:"types"`
	Directives       []jsonDirective `json:"directives"`
}

type jsonNamed struct {
	Name string `json:"name"`
}

type jsonType struct {
	Kind          string           `json:"kind"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Fields        []jsonField      `json:"fields"`
	InputFields   []jsonInputValue `json:"inputFields"`
	Interfaces    []jsonTypeRef    `json:"interfaces"`
	EnumValues    []jsonEnumValue  `json:"enumValues"`
	PossibleTypes []jsonTypeRef    `json:"possibleTypes"`
}

type jsonField struct {
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	Args              []jsonInputValue `json:"args"`
	Type              *jsonTypeRef     `json:"type"`
	IsDeprecated      bool             `json:"isDeprecated"`
	DeprecationReason string           `json:"deprecationReason"`
}

type jsonInputValue struct {
	Name              string       `json:"name"`
	Description       string       `json:"description"`
	Type              *jsonTypeRef `json:"type"`
	DefaultValue      *string      `json:"defaultValue"`
	IsDeprecated      bool         `json:"isDeprecated"`
	DeprecationReason string       `json:"deprecationReason"`
}

type jsonEnumValue struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	IsDeprecated      bool   `json:"isDeprecated"`
	DeprecationReason string `json:"deprecationReason"`
}

type jsonDirective struct {
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	IsRepeatable bool             `json:"isRepeatable"`
	Locations    []string         `json:"locations"`
	Args         []jsonInputValue `json:"args"`
}

type jsonTypeRef struct {
	Kind   string       `json:"kind"`
	Name   string       `json:"name"`
	OfType *jsonTypeRef `json:"ofType"`
}

func (js *jsonSchema) toSchema() (*schema.Schema, error) {
	sch := schema.NewSchema(js.Description)
	if js.QueryType != nil {
		sch.SetQueryType(js.QueryType.Name)
	}
	if js.MutationType != nil {
		sch.SetMutationType(js.MutationType.Name)
	}
	if js.SubscriptionType != nil {
		sch.SetSubscriptionType(js.SubscriptionType.Name)
	}

	for _, jt := range js.Types {
		if strings.HasPrefix(jt.Name, "__") {
			continue
		}
		t, err := jt.toType()
		if err != nil {
			return nil, err
		}
		sch.AddType(t)
	}
	for _, jd := range js.Directives {
		d := schema.NewDirective(jd.Name, jd.Description).SetRepeatable(jd.IsRepeatable)
		d.Locations = append(d.Locations, jd.Locations...)
		for _, a := range jd.Args {
			arg, err := a.toInputValue()
			if err != nil {
				return nil, err
			}
			d.AddArgument(arg)
		}
		sch.AddDirective(d)
	}
	return sch, nil
}

func (jt *jsonType) toType() (*schema.Type, error) {
	t := schema.NewType(jt.Name, schema.TypeKind(jt.Kind), jt.Description)
	switch schema.TypeKind(jt.Kind) {
	case schema.TypeKindObject, schema.TypeKindInterface:
		for _, jf := range jt.Fields {
			f, err := jf.toField()
			if err != nil {
				return nil, err
			}
			t.AddField(f)
		}
		for _, it := range jt.Interfaces {
			t.AddInterface(it.Name)
		}
		if schema.TypeKind(jt.Kind) == schema.TypeKindInterface {
			for _, pt := range jt.PossibleTypes {
				t.AddPossibleType(pt.Name)
			}
		}
	case schema.TypeKindUnion:
		for _, pt := range jt.PossibleTypes {
			t.AddPossibleType(pt.Name)
		}
	case schema.TypeKindEnum:
		for _, ev := range jt.EnumValues {
			v := schema.NewEnumValue(ev.Name, ev.Description)
			if ev.IsDeprecated {
				v.Deprecate(ev.DeprecationReason)
			}
			t.AddEnumValue(v)
		}
	case schema.TypeKindInputObject:
		for _, iv := range jt.InputFields {
			v, err := iv.toInputValue()
			if err != nil {
				return nil, err
			}
			t.AddInputField(v)
		}
	case schema.TypeKindScalar:
		// nothing beyond name and description
	default:
		return nil, fmt.Errorf("unknown type kind %q for type %s", jt.Kind, jt.Name)
	}
	return t, nil
}

func (jf *jsonField) toField() (*schema.Field, error) {
	tr, err := jf.Type.toTypeRef()
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", jf.Name, err)
	}
	f := schema.NewField(jf.Name, jf.Description, tr)
	if jf.IsDeprecated {
		f.Deprecate(jf.DeprecationReason)
	}
	for _, a := range jf.Args {
		arg, err := a.toInputValue()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", jf.Name, err)
		}
		f.AddArgument(arg)
	}
	return f, nil
}

func (ja *jsonInputValue) toInputValue() (*schema.InputValue, error) {
	tr, err := ja.Type.toTypeRef()
	if err != nil {
		return nil, fmt.Errorf("argument %s: %w", ja.Name, err)
	}
	v := schema.NewInputValue(ja.Name, ja.Description, tr)
	if ja.DefaultValue != nil {
		// Introspection yields defaults as GraphQL literals; keep them raw
		// so rendering echoes them verbatim.
		v.SetDefault(schema.RawValue(*ja.DefaultValue))
	}
	if ja.IsDeprecated {
		v.Deprecate(ja.DeprecationReason)
	}
	return v, nil
}

func (jr *jsonTypeRef) toTypeRef() (*schema.TypeRef, error) {
	if jr == nil {
		return nil, fmt.Errorf("missing type reference")
	}
	switch jr.Kind {
	case "NON_NULL":
		inner, err := jr.OfType.toTypeRef()
		if err != nil {
			return nil, err
		}
		return schema.NonNullType(inner), nil
	case "LIST":
		inner, err := jr.OfType.toTypeRef()
		if err != nil {
			return nil, err
		}
		return schema.ListType(inner), nil
	default:
		if jr.Name == "" {
			return nil, fmt.Errorf("type reference of kind %s has no name", jr.Kind)
		}
		return schema.NamedType(jr.Name), nil
	}
}
