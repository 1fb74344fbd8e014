package schema

import (
	"bytes"
	"fmt"
	"go/format"
	"io"
	"strings"

	"github.com/jinzhu/inflection"
)

// WriteTypes renders Go struct declarations for every entity in the descriptor
// as a gofmt'd source file in package pkg.
func WriteTypes(w io.Writer, d *Descriptor, pkg string) error {
	var buf bytes.Buffer

	usesTime := false
	for _, e := range d.Entities {
		if e.Timestamps != nil {
			usesTime = true
			break
		}
	}

	fmt.Fprintf(&buf, "// Code generated by cultivate types. DO NOT EDIT.\n\n")
	fmt.Fprintf(&buf, "package %s\n\n", pkg)
	if usesTime {
		fmt.Fprintf(&buf, "import \"time\"\n\n")
	}

	for _, e := range d.Entities {
		name := TypeName(e.Name)
		fmt.Fprintf(&buf, "// %s is a row of the %s entity.\n", name, e.Name)
		fmt.Fprintf(&buf, "type %s struct {\n", name)
		fmt.Fprintf(&buf, "\tID int64 `json:\"id\"`\n")
		for _, f := range e.Fields {
			fmt.Fprintf(&buf, "\t%s %s `json:\"%s%s\"`\n", goName(f.Name), goType(f), f.Name, omitEmpty(f))
		}
		for _, rel := range d.RelationsFrom(e.Name) {
			fmt.Fprintf(&buf, "\t%s *int64 `json:\"%s,omitempty\"`\n", goName(rel.Column), rel.Column)
		}
		if e.Timestamps != nil {
			fmt.Fprintf(&buf, "\tCreatedAt *time.Time `json:\"created_at,omitempty\"`\n")
			fmt.Fprintf(&buf, "\tUpdatedAt *time.Time `json:\"updated_at,omitempty\"`\n")
		}
		fmt.Fprintf(&buf, "}\n\n")
	}

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return fmt.Errorf("formatting generated types: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return fmt.Errorf("writing generated types: %w", err)
	}
	return nil
}

// TypeName returns the exported Go type name for an entity, e.g. "replies" -> "Reply".
func TypeName(entity string) string {
	return goName(inflection.Singular(entity))
}

func goType(f FieldDescriptor) string {
	var base string
	switch f.Type {
	case TypeNumber:
		base = "float64"
	case TypeBoolean:
		base = "bool"
	default:
		base = "string"
	}
	if f.Required || f.HasDefault() {
		return base
	}
	return "*" + base
}

func omitEmpty(f FieldDescriptor) string {
	if f.Required || f.HasDefault() {
		return ""
	}
	return ",omitempty"
}

func goName(snake string) string {
	parts := strings.Split(snake, "_")
	for i, p := range parts {
		switch p {
		case "":
		case "id", "url":
			parts[i] = strings.ToUpper(p)
		default:
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "")
}
