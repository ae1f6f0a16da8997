package schema

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/hanpama/graphgate/internal/language"
)

// RawValue is a default value rendered without quoting, such as an enum name.
type RawValue string

// BuildFromSDL parses an SDL document and returns the corresponding Schema.
// Type extensions in the same document are merged into their base
// definitions. Root operation types default to Query/Mutation/Subscription
// when no schema block names them.
func BuildFromSDL(sdl string) (*Schema, error) {
	doc, err := language.ParseSchema("sdl", sdl)
	if err != nil {
		return nil, fmt.Errorf("parsing sdl: %w", err)
	}

	s := NewSchema("").AddBuiltins()

	for _, def := range doc.Definitions {
		s.AddType(TypeFromAST(def))
	}
	for _, ext := range doc.Extensions {
		base := s.Types[ext.Name]
		if base == nil {
			return nil, fmt.Errorf("extension of unknown type %q", ext.Name)
		}
		ExtendType(base, ext)
	}
	for _, dd := range doc.Directives {
		s.AddDirective(directiveFromAST(dd))
	}

	for _, sd := range doc.Schema {
		for _, op := range sd.OperationTypes {
			switch op.Operation {
			case language.Query:
				s.SetQueryType(op.Type)
			case language.Mutation:
				s.SetMutationType(op.Type)
			case language.Subscription:
				s.SetSubscriptionType(op.Type)
			}
		}
	}
	if s.QueryType == "" && s.Types["Query"] != nil {
		s.SetQueryType("Query")
	}
	if s.MutationType == "" && s.Types["Mutation"] != nil {
		s.SetMutationType("Mutation")
	}
	if s.SubscriptionType == "" && s.Types["Subscription"] != nil {
		s.SetSubscriptionType("Subscription")
	}

	ComputePossibleTypes(s)
	return s, nil
}

// TypeFromAST converts one SDL type definition into the schema model.
func TypeFromAST(def *language.Definition) *Type {
	switch def.Kind {
	case language.Object, language.Interface:
		kind := TypeKindObject
		if def.Kind == language.Interface {
			kind = TypeKindInterface
		}
		t := NewType(def.Name, kind, def.Description)
		for _, iface := range def.Interfaces {
			t.AddInterface(iface)
		}
		for _, fd := range def.Fields {
			if isIntrospectionName(fd.Name) {
				continue
			}
			t.AddField(FieldFromAST(fd))
		}
		return t
	case language.Union:
		t := NewType(def.Name, TypeKindUnion, def.Description)
		for _, name := range def.Types {
			t.AddPossibleType(name)
		}
		return t
	case language.Enum:
		t := NewType(def.Name, TypeKindEnum, def.Description)
		for _, v := range def.EnumValues {
			ev := NewEnumValue(v.Name, v.Description)
			if reason, ok := deprecationOf(v.Directives); ok {
				ev.Deprecate(reason)
			}
			t.AddEnumValue(ev)
		}
		return t
	case language.InputObject:
		t := NewType(def.Name, TypeKindInputObject, def.Description)
		t.SetOneOf(def.Directives.ForName("oneOf") != nil)
		for _, fd := range def.Fields {
			in := NewInputValue(fd.Name, fd.Description, TypeRefFromAST(fd.Type)).
				SetDefault(goValueFromAST(fd.DefaultValue))
			if reason, ok := deprecationOf(fd.Directives); ok {
				in.Deprecate(reason)
			}
			t.AddInputField(in)
		}
		return t
	case language.Scalar:
		t := NewType(def.Name, TypeKindScalar, def.Description)
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				url := arg.Value.Raw
				t.SpecifiedByURL = &url
			}
		}
		return t
	}
	panic("unreachable")
}

// ExtendType merges an SDL extension block into an already-built type.
func ExtendType(t *Type, ext *language.Definition) {
	for _, iface := range ext.Interfaces {
		t.AddInterface(iface)
	}
	for _, fd := range ext.Fields {
		switch t.Kind {
		case TypeKindInputObject:
			in := NewInputValue(fd.Name, fd.Description, TypeRefFromAST(fd.Type)).
				SetDefault(goValueFromAST(fd.DefaultValue))
			t.AddInputField(in)
		default:
			t.AddField(FieldFromAST(fd))
		}
	}
	for _, name := range ext.Types {
		t.AddPossibleType(name)
	}
	for _, v := range ext.EnumValues {
		t.AddEnumValue(NewEnumValue(v.Name, v.Description))
	}
}

// FieldFromAST converts one SDL field definition into the schema model.
func FieldFromAST(fd *language.FieldDefinition) *Field {
	f := NewField(fd.Name, fd.Description, TypeRefFromAST(fd.Type))
	if reason, ok := deprecationOf(fd.Directives); ok {
		f.Deprecate(reason)
	}
	for _, arg := range fd.Arguments {
		in := NewInputValue(arg.Name, arg.Description, TypeRefFromAST(arg.Type)).
			SetDefault(goValueFromAST(arg.DefaultValue))
		f.AddArgument(in)
	}
	return f
}

// TypeRefFromAST converts an SDL type expression into a TypeRef.
// ParseTypeRef parses a standalone type reference such as "[Review!]!".
func ParseTypeRef(src string) (*TypeRef, error) {
	doc, err := language.ParseSchema("typeref", "type T { f: "+src+" }")
	if err != nil {
		return nil, fmt.Errorf("parsing type reference %q: %w", src, err)
	}
	return TypeRefFromAST(doc.Definitions[0].Fields[0].Type), nil
}

func TypeRefFromAST(t *language.Type) *TypeRef {
	if t == nil {
		return nil
	}
	var inner *TypeRef
	if t.NamedType != "" {
		inner = NamedType(t.NamedType)
	} else {
		inner = ListType(TypeRefFromAST(t.Elem))
	}
	if t.NonNull {
		return NonNullType(inner)
	}
	return inner
}

// ComputePossibleTypes fills in interface possible types from the object
// types declaring them. Union possible types come straight from the SDL.
func ComputePossibleTypes(s *Schema) {
	for _, iface := range s.Types {
		if iface.Kind == TypeKindInterface {
			iface.PossibleTypes = nil
		}
	}
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		obj := s.Types[name]
		if obj.Kind != TypeKindObject {
			continue
		}
		for _, ifaceName := range obj.Interfaces {
			if iface := s.Types[ifaceName]; iface != nil && iface.Kind == TypeKindInterface {
				iface.AddPossibleType(obj.Name)
			}
		}
	}
}

func directiveFromAST(dd *language.DirectiveDefinition) *Directive {
	d := NewDirective(dd.Name, dd.Description).SetRepeatable(dd.IsRepeatable)
	for _, loc := range dd.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, arg := range dd.Arguments {
		in := NewInputValue(arg.Name, arg.Description, TypeRefFromAST(arg.Type)).
			SetDefault(goValueFromAST(arg.DefaultValue))
		d.AddArgument(in)
	}
	return d
}

func deprecationOf(directives language.DirectiveList) (string, bool) {
	d := directives.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return "", true
}

// goValueFromAST converts an SDL literal to a Go value for default value
// storage. Enum literals become RawValue so rendering emits them unquoted.
func goValueFromAST(v *language.Value) any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case language.IntValue:
		n, err := strconv.ParseInt(v.Raw, 10, 64)
		if err != nil {
			return RawValue(v.Raw)
		}
		return n
	case language.FloatValue:
		f, err := strconv.ParseFloat(v.Raw, 64)
		if err != nil {
			return RawValue(v.Raw)
		}
		return f
	case language.StringValue, language.BlockValue:
		return v.Raw
	case language.BooleanValue:
		return v.Raw == "true"
	case language.NullValue:
		return nil
	case language.EnumValue:
		return RawValue(v.Raw)
	case language.ListValue:
		out := make([]any, 0, len(v.Children))
		for _, child := range v.Children {
			out = append(out, goValueFromAST(child.Value))
		}
		return out
	case language.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, child := range v.Children {
			out[child.Name] = goValueFromAST(child.Value)
		}
		return out
	}
	return RawValue(v.Raw)
}

func isIntrospectionName(name string) bool {
	return len(name) > 2 && name[0] == '_' && name[1] == '_'
}
