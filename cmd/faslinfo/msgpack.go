package main

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/daedaluz/scanlisp/value"
)

// errCyclic is returned when a decoded graph contains a pointer-identity
// cycle; msgpack has no back-reference primitive, so such graphs cannot be
// represented without special framing this command does not implement.
var errCyclic = errors.New("faslinfo: value contains a cycle, msgpack dump not supported")

// encodeMsgpack flattens v into plain Go values (bools, strings, numbers,
// slices, maps) and encodes the result with msgpack. onPath tracks
// composite pointers currently on the path from the root so a repeat visit
// is reported as errCyclic instead of recursing forever; revisiting a
// pointer NOT on the current path (shared, non-cyclic structure) is fine
// and simply encodes the same data twice.
func encodeMsgpack(v value.Value) ([]byte, error) {
	flat, err := flatten(v, map[value.Value]bool{})
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(flat)
}

func flatten(v value.Value, onPath map[value.Value]bool) (interface{}, error) {
	switch t := v.(type) {
	case value.Nil:
		return nil, nil
	case value.Bool:
		return t.V, nil
	case value.Char:
		return string(t.V), nil
	case value.Fixnum:
		return t.V, nil
	case value.Flonum:
		return t.V, nil
	case value.Complex:
		return map[string]interface{}{"re": t.Re, "im": t.Im}, nil
	case *value.String:
		return t.String(), nil
	case *value.Symbol:
		home := ""
		if t.Home != nil {
			home = t.Home.Name
		}
		return map[string]interface{}{"symbol": t.Name, "package": home}, nil
	case *value.Package:
		return map[string]interface{}{"package": t.Name}, nil
	case *value.Cons:
		if onPath[v] {
			return nil, errCyclic
		}
		onPath[v] = true
		defer delete(onPath, v)

		var elems []interface{}
		var cur value.Value = t
		for {
			cons, ok := cur.(*value.Cons)
			if !ok {
				break
			}
			if cons != t && onPath[cons] {
				return nil, errCyclic
			}
			onPath[cons] = true
			defer delete(onPath, cons)
			car, err := flatten(cons.Car, onPath)
			if err != nil {
				return nil, err
			}
			elems = append(elems, car)
			cur = cons.Cdr
		}
		if _, isNil := cur.(value.Nil); !isNil {
			tail, err := flatten(cur, onPath)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"list": elems, "tail": tail}, nil
		}
		return elems, nil
	case *value.Vector:
		if onPath[v] {
			return nil, errCyclic
		}
		onPath[v] = true
		defer delete(onPath, v)
		out := make([]interface{}, len(t.Elems))
		for i, e := range t.Elems {
			flat, err := flatten(e, onPath)
			if err != nil {
				return nil, err
			}
			out[i] = flat
		}
		return out, nil
	case *value.Structure:
		if onPath[v] {
			return nil, errCyclic
		}
		onPath[v] = true
		defer delete(onPath, v)
		elems := make([]interface{}, len(t.Elems))
		for i, e := range t.Elems {
			flat, err := flatten(e, onPath)
			if err != nil {
				return nil, err
			}
			elems[i] = flat
		}
		return map[string]interface{}{"structure": elems}, nil
	case *value.Hash:
		if onPath[v] {
			return nil, errCyclic
		}
		onPath[v] = true
		defer delete(onPath, v)
		out := make(map[string]interface{}, len(t.Keys))
		for i := range t.Keys {
			k, err := flatten(t.Keys[i], onPath)
			if err != nil {
				return nil, err
			}
			val, err := flatten(t.Values[i], onPath)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	case *value.Instance:
		if onPath[v] {
			return nil, errCyclic
		}
		onPath[v] = true
		defer delete(onPath, v)
		slots := make(map[string]interface{}, len(t.Slots))
		for i, s := range t.Slots {
			flat, err := flatten(s, onPath)
			if err != nil {
				return nil, err
			}
			name := fmt.Sprintf("slot%d", i)
			if i < len(t.SlotNames) && t.SlotNames[i] != "" {
				name = t.SlotNames[i]
			}
			slots[name] = flat
		}
		return slots, nil
	case value.EOF:
		return "#eof", nil
	case value.Unbound:
		return "#unbound", nil
	default:
		return nil, fmt.Errorf("faslinfo: cannot encode %s as msgpack", v.Kind())
	}
}
