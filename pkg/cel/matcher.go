/*
 Copyright 2023 NanaFS Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package cel

import (
	"github.com/basenana/davstore/pkg/types"
	goCEL "github.com/google/cel-go/cel"
	celTypes "github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/pkg/errors"
)

var propsType = goCEL.MapType(goCEL.StringType, goCEL.MapType(goCEL.StringType, goCEL.StringType))

var resourceEnvOptions = []goCEL.EnvOption{
	goCEL.Variable("id", goCEL.StringType),
	goCEL.Variable("name", goCEL.StringType),
	goCEL.Variable("resource_type", goCEL.StringType),
	goCEL.Variable("content_type", goCEL.StringType),
	goCEL.Variable("is_collection", goCEL.BoolType),
	goCEL.Variable("props", propsType),
	// props.property(name, namespace) returns "" for absent keys
	goCEL.Function("property",
		goCEL.MemberOverload("props_property_string_string",
			[]*goCEL.Type{propsType, goCEL.StringType, goCEL.StringType}, goCEL.StringType,
			goCEL.FunctionBinding(lookupProperty),
		),
	),
}

func lookupProperty(args ...ref.Val) ref.Val {
	if len(args) != 3 {
		return celTypes.String("")
	}
	groups, ok := args[0].(traits.Mapper)
	if !ok {
		return celTypes.String("")
	}
	group, found := groups.Find(args[2])
	if !found {
		return celTypes.String("")
	}
	groupMap, ok := group.(traits.Mapper)
	if !ok {
		return celTypes.String("")
	}
	val, found := groupMap.Find(args[1])
	if !found {
		return celTypes.String("")
	}
	if s, ok := val.(celTypes.String); ok {
		return s
	}
	return celTypes.String("")
}

// Matcher is a compiled search expression over resources.
type Matcher struct {
	expression string
	prg        goCEL.Program
}

func Compile(expression string) (*Matcher, error) {
	e, err := goCEL.NewEnv(resourceEnvOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create CEL environment")
	}
	ast, issues := e.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Errorf("failed to compile expression: %v", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(goCEL.BoolType) && !out.IsExactType(goCEL.DynType) {
		return nil, errors.Errorf("expression %q must evaluate to bool, got %s", expression, out)
	}
	prg, err := e.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build CEL program")
	}
	return &Matcher{expression: expression, prg: prg}, nil
}

func (m *Matcher) String() string {
	return m.expression
}

// Match evaluates the expression; evaluation errors count as a miss.
func (m *Matcher) Match(res *types.Resource) bool {
	vars := map[string]any{
		"id":            string(res.ID),
		"name":          res.Name,
		"resource_type": string(res.Type),
		"content_type":  res.ContentType,
		"is_collection": res.IsCollection(),
		"props":         res.Properties.Grouped(),
	}
	out, _, err := m.prg.Eval(vars)
	if err != nil {
		return false
	}
	return out == celTypes.Bool(true)
}
