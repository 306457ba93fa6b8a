package graphdb

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// entityMetadata holds the parsed `crud` tag information for a specific struct type.
// This metadata is cached to avoid costly reflection on every operation.
type entityMetadata struct {
	// Label is the graph node label, defaulting to the struct's name.
	Label string
	// PKField is the name of the struct field marked as the primary key. Empty for
	// row shapes that are never saved on their own (e.g. relationship snapshots).
	PKField string
	// PKProp is the property name of the primary key in the database.
	PKProp string
	// Mappings maps struct field names to their corresponding database property names.
	Mappings map[string]string
}

var metaCache sync.Map // reflect.Type -> *entityMetadata

// metadataFor returns the cached metadata for typ, parsing it on first use.
func metadataFor(typ reflect.Type) (*entityMetadata, error) {
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if cached, ok := metaCache.Load(typ); ok {
		return cached.(*entityMetadata), nil
	}
	meta, err := parseTagsFromType(typ)
	if err != nil {
		return nil, err
	}
	metaCache.Store(typ, meta)
	return meta, nil
}

// parseTagsFromType inspects a reflect.Type and extracts persistence metadata from
// `crud` struct tags. A tag looks like `crud:"pk,property:userId"`; the `label:`
// component, allowed on any field, overrides the node label.
func parseTagsFromType(typ reflect.Type) (*entityMetadata, error) {
	// If the type is a pointer, get the underlying element's type.
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type %s is not a struct", typ.Name())
	}

	meta := &entityMetadata{
		Label:    typ.Name(),
		Mappings: make(map[string]string),
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("crud")

		// Skip fields that are not part of the persistence mapping.
		if tag == "" || tag == "-" {
			continue
		}

		isPk := false
		propName := ""

		for _, part := range strings.Split(tag, ",") {
			part = strings.TrimSpace(part)
			switch {
			case part == "pk":
				isPk = true
			case strings.HasPrefix(part, "property:"):
				propName = strings.TrimPrefix(part, "property:")
			case strings.HasPrefix(part, "label:"):
				meta.Label = strings.TrimPrefix(part, "label:")
			}
		}

		if propName == "" {
			return nil, fmt.Errorf("field %s is missing 'property' tag component", field.Name)
		}

		if isPk {
			if meta.PKField != "" {
				return nil, fmt.Errorf("struct %s declares more than one primary key", typ.Name())
			}
			meta.PKField = field.Name
			meta.PKProp = propName
		}
		meta.Mappings[field.Name] = propName
	}

	return meta, nil
}

// parseTags is a generic convenience wrapper around metadataFor.
// It allows getting metadata from a compile-time type T instead of a runtime reflect.Type,
// which is useful for the generic Repository.
func parseTags[T any]() (*entityMetadata, error) {
	var instance T
	return metadataFor(reflect.TypeOf(instance))
}
