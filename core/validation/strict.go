package validation

import (
	"fmt"
	"sort"
	"strings"
)

var knownKeywords = map[string]struct{}{}

func init() {
	for _, kw := range strings.Fields(`
		$schema $id id $ref $anchor $dynamicRef $dynamicAnchor $recursiveRef
		$recursiveAnchor $vocabulary $comment $defs definitions
		type enum const
		multipleOf maximum exclusiveMaximum minimum exclusiveMinimum
		maxLength minLength pattern format
		items additionalItems prefixItems contains maxContains minContains
		maxItems minItems uniqueItems unevaluatedItems
		properties patternProperties additionalProperties propertyNames
		maxProperties minProperties required dependencies dependentRequired
		dependentSchemas unevaluatedProperties
		allOf anyOf oneOf not if then else
		title description default examples readOnly writeOnly deprecated
		contentEncoding contentMediaType contentSchema`) {
		knownKeywords[kw] = struct{}{}
	}
}

// keywords whose value is a single subschema
var schemaKeywords = []string{
	"additionalItems", "additionalProperties", "contains", "not", "if", "then",
	"else", "propertyNames", "unevaluatedItems", "unevaluatedProperties",
	"contentSchema",
}

// keywords whose value is an array of subschemas
var schemaArrayKeywords = []string{"allOf", "anyOf", "oneOf", "prefixItems"}

// keywords whose value maps names to subschemas
var schemaMapKeywords = []string{
	"properties", "patternProperties", "$defs", "definitions", "dependentSchemas",
	"dependencies",
}

// checkKeywords walks every schema position of doc and rejects keywords the
// supported drafts do not define. Extension keywords prefixed with "x-" pass.
func checkKeywords(doc any) error {
	return walkSchema(doc, "#")
}

func walkSchema(node any, at string) error {
	obj, ok := node.(map[string]any)
	if !ok {
		// booleans, and the property lists dependencies may hold
		return nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, known := knownKeywords[k]; known || strings.HasPrefix(k, "x-") {
			continue
		}
		return fmt.Errorf("%w: strict mode: unknown keyword %q at %s", ErrInvalidSchema, k, at)
	}

	for _, kw := range schemaKeywords {
		if sub, ok := obj[kw]; ok {
			if err := walkSchema(sub, at+"/"+kw); err != nil {
				return err
			}
		}
	}

	for _, kw := range schemaArrayKeywords {
		if arr, ok := obj[kw].([]any); ok {
			for i, sub := range arr {
				if err := walkSchema(sub, fmt.Sprintf("%s/%s/%d", at, kw, i)); err != nil {
					return err
				}
			}
		}
	}

	switch items := obj["items"].(type) {
	case map[string]any:
		if err := walkSchema(items, at+"/items"); err != nil {
			return err
		}
	case []any:
		for i, sub := range items {
			if err := walkSchema(sub, fmt.Sprintf("%s/items/%d", at, i)); err != nil {
				return err
			}
		}
	}

	for _, kw := range schemaMapKeywords {
		m, ok := obj[kw].(map[string]any)
		if !ok {
			continue
		}
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := walkSchema(m[name], at+"/"+kw+"/"+name); err != nil {
				return err
			}
		}
	}
	return nil
}
