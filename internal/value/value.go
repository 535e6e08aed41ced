// Package value clones and compares the untyped nested values held by stores.
package value

import "reflect"

// Clone returns a deep copy of v. Maps and slices are copied recursively;
// anything else is returned as is.
func Clone(v any) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case []byte:
		return append([]byte(nil), t...)
	}
	return cloneReflect(reflect.ValueOf(v)).Interface()
}

func cloneReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneElem(iter.Value(), v.Type().Elem()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneElem(v.Index(i), v.Type().Elem()))
		}
		return out
	}
	return v
}

func cloneElem(v reflect.Value, typ reflect.Type) reflect.Value {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(typ)
		}
		v = v.Elem()
	}
	c := cloneReflect(v)
	if !c.Type().AssignableTo(typ) {
		return c.Convert(typ)
	}
	return c
}

// Same reports whether a and b are the same object: identical pointers,
// maps or slices backed by the same storage. Scalars are never the same object.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		if va.IsNil() || vb.IsNil() {
			return false
		}
		if va.Kind() == reflect.Slice && va.Len() != vb.Len() {
			return false
		}
		return va.Pointer() == vb.Pointer()
	}
	return false
}
