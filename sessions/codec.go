package sessions

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/reusee/tainb/kernels"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

type nodeKind uint8

const (
	kindNone nodeKind = iota + 1
	kindBool
	kindInt
	kindFloat
	kindString
	kindBytes
	kindList
	kindTuple
	kindDict
	kindSet
	kindStruct
	kindRich
	kindBuiltin
	kindFunction
)

type node struct {
	Kind   nodeKind
	Bool   bool
	Float  float64
	Text   string
	Bytes  []byte
	Name   string
	Keys   []string
	Object []byte
	Elems  []node
	Values []node
}

// Codec is the default Serializer: a gob-encoded tree of Starlark values.
// Guest functions are stored as their defining source, builtins and
// library modules by qualified name.
type Codec struct{}

var _ Serializer = Codec{}

func (c Codec) Encode(env Env, value starlark.Value) ([]byte, error) {
	n, err := c.toNode(env, value, make(map[starlark.Value]bool))
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c Codec) Decode(env Env, data []byte) (starlark.Value, error) {
	var n node
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&n); err != nil {
		return nil, err
	}
	return c.fromNode(env, n)
}

func (c Codec) toNode(env Env, value starlark.Value, visiting map[starlark.Value]bool) (ret node, err error) {
	switch value.(type) {
	case *starlark.List, *starlark.Dict, *starlark.Set, *starlarkstruct.Struct:
		if visiting[value] {
			return ret, ErrCyclic
		}
		visiting[value] = true
		defer delete(visiting, value)
	}

	elems := func(iterable starlark.Iterable) ([]node, error) {
		iter := iterable.Iterate()
		defer iter.Done()
		var ret []node
		var elem starlark.Value
		for iter.Next(&elem) {
			n, err := c.toNode(env, elem, visiting)
			if err != nil {
				return nil, err
			}
			ret = append(ret, n)
		}
		return ret, nil
	}

	switch value := value.(type) {

	case starlark.NoneType:
		return node{Kind: kindNone}, nil

	case starlark.Bool:
		return node{Kind: kindBool, Bool: bool(value)}, nil

	case starlark.Int:
		return node{Kind: kindInt, Text: value.String()}, nil

	case starlark.Float:
		return node{Kind: kindFloat, Float: float64(value)}, nil

	case starlark.String:
		return node{Kind: kindString, Text: string(value)}, nil

	case starlark.Bytes:
		return node{Kind: kindBytes, Bytes: []byte(value)}, nil

	case *starlark.List:
		ns, err := elems(value)
		if err != nil {
			return ret, err
		}
		return node{Kind: kindList, Elems: ns}, nil

	case starlark.Tuple:
		ns, err := elems(value)
		if err != nil {
			return ret, err
		}
		return node{Kind: kindTuple, Elems: ns}, nil

	case *starlark.Set:
		ns, err := elems(value)
		if err != nil {
			return ret, err
		}
		return node{Kind: kindSet, Elems: ns}, nil

	case *starlark.Dict:
		ret.Kind = kindDict
		for _, item := range value.Items() {
			k, err := c.toNode(env, item[0], visiting)
			if err != nil {
				return ret, err
			}
			v, err := c.toNode(env, item[1], visiting)
			if err != nil {
				return ret, err
			}
			ret.Elems = append(ret.Elems, k)
			ret.Values = append(ret.Values, v)
		}
		return ret, nil

	case *starlarkstruct.Struct:
		if value.Constructor() != starlarkstruct.Default {
			return ret, fmt.Errorf("%w: struct with constructor %s", ErrUnsupported, value.Constructor())
		}
		ret.Kind = kindStruct
		for _, name := range value.AttrNames() {
			field, err := value.Attr(name)
			if err != nil {
				return ret, err
			}
			n, err := c.toNode(env, field, visiting)
			if err != nil {
				return ret, err
			}
			ret.Keys = append(ret.Keys, name)
			ret.Values = append(ret.Values, n)
		}
		return ret, nil

	case *kernels.Rich:
		ret = node{
			Kind:  kindRich,
			Name:  value.MIME,
			Text:  value.Text,
			Bytes: value.Data,
		}
		if value.Object != nil {
			obj, err := json.Marshal(value.Object)
			if err != nil {
				return ret, err
			}
			ret.Object = obj
		}
		return ret, nil

	case *starlark.Function:
		src, ok := env.FunctionSource(value)
		if !ok {
			return ret, fmt.Errorf("%w: function %s has no recorded source", ErrUnsupported, value.Name())
		}
		return node{
			Kind: kindFunction,
			Name: src.Name,
			Text: src.Source,
		}, nil

	}

	if name, ok := kernels.QualifiedName(value); ok {
		return node{Kind: kindBuiltin, Name: name}, nil
	}

	return ret, fmt.Errorf("%w: %s", ErrUnsupported, value.Type())
}

func (c Codec) fromNode(env Env, n node) (starlark.Value, error) {
	values := func(ns []node) ([]starlark.Value, error) {
		ret := make([]starlark.Value, 0, len(ns))
		for _, n := range ns {
			v, err := c.fromNode(env, n)
			if err != nil {
				return nil, err
			}
			ret = append(ret, v)
		}
		return ret, nil
	}

	switch n.Kind {

	case kindNone:
		return starlark.None, nil

	case kindBool:
		return starlark.Bool(n.Bool), nil

	case kindInt:
		i, ok := new(big.Int).SetString(n.Text, 10)
		if !ok {
			return nil, fmt.Errorf("bad int: %q", n.Text)
		}
		return starlark.MakeBigInt(i), nil

	case kindFloat:
		return starlark.Float(n.Float), nil

	case kindString:
		return starlark.String(n.Text), nil

	case kindBytes:
		return starlark.Bytes(n.Bytes), nil

	case kindList:
		elems, err := values(n.Elems)
		if err != nil {
			return nil, err
		}
		return starlark.NewList(elems), nil

	case kindTuple:
		elems, err := values(n.Elems)
		if err != nil {
			return nil, err
		}
		return starlark.Tuple(elems), nil

	case kindSet:
		elems, err := values(n.Elems)
		if err != nil {
			return nil, err
		}
		set := starlark.NewSet(len(elems))
		for _, elem := range elems {
			if err := set.Insert(elem); err != nil {
				return nil, err
			}
		}
		return set, nil

	case kindDict:
		if len(n.Elems) != len(n.Values) {
			return nil, fmt.Errorf("bad dict node")
		}
		keys, err := values(n.Elems)
		if err != nil {
			return nil, err
		}
		vals, err := values(n.Values)
		if err != nil {
			return nil, err
		}
		dict := starlark.NewDict(len(keys))
		for i, key := range keys {
			if err := dict.SetKey(key, vals[i]); err != nil {
				return nil, err
			}
		}
		return dict, nil

	case kindStruct:
		if len(n.Keys) != len(n.Values) {
			return nil, fmt.Errorf("bad struct node")
		}
		vals, err := values(n.Values)
		if err != nil {
			return nil, err
		}
		fields := make(starlark.StringDict, len(n.Keys))
		for i, key := range n.Keys {
			fields[key] = vals[i]
		}
		return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil

	case kindRich:
		rich := &kernels.Rich{
			MIME: n.Name,
			Text: n.Text,
			Data: n.Bytes,
		}
		if len(n.Object) > 0 {
			if err := json.Unmarshal(n.Object, &rich.Object); err != nil {
				return nil, err
			}
		}
		return rich, nil

	case kindBuiltin:
		v, ok := kernels.ResolveQualified(n.Name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown builtin %s", ErrUnsupported, n.Name)
		}
		return v, nil

	case kindFunction:
		fn, err := env.DefineFunction(kernels.FunctionSource{
			Name:   n.Name,
			Source: n.Text,
		})
		if err != nil {
			return nil, err
		}
		return fn, nil

	}

	return nil, fmt.Errorf("unknown node kind %d", n.Kind)
}
