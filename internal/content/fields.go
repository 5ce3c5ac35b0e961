package content

import (
	"fmt"
	"sort"
	"strings"
)

// Flatten turns nested field maps into dotted references. Only string leaves
// are translatable; numbers, booleans and empty strings are skipped.
func Flatten(fields map[string]any) map[string]string {
	out := map[string]string{}
	flatten("", fields, out)
	return out
}

func flatten(prefix string, fields map[string]any, out map[string]string) {
	for k, v := range fields {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				out[key] = val
			}
		case map[string]any:
			flatten(key, val, out)
		}
	}
}

// Overlay writes values at their dotted references into a copy of fields.
func Overlay(fields map[string]any, values map[string]string) (map[string]any, error) {
	out := deepCopy(fields)

	refs := make([]string, 0, len(values))
	for ref := range values {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	for _, ref := range refs {
		parts := strings.Split(ref, ".")
		node := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := node[p]
			if !ok {
				child := map[string]any{}
				node[p] = child
				node = child
				continue
			}
			child, ok := next.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("field %q is not an object", p)
			}
			node = child
		}
		node[parts[len(parts)-1]] = values[ref]
	}
	return out, nil
}

func deepCopy(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if m, ok := v.(map[string]any); ok {
			out[k] = deepCopy(m)
			continue
		}
		out[k] = v
	}
	return out
}
