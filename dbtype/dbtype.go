// Package dbtype defines the closed enumeration of data-model flavors a
// database can be opened as, and the per-flavor document-root factory.
package dbtype

import (
	"fmt"

	"github.com/evalgo/treedb/node"
)

// Type is the data-model flavor of a database: XML or JSON. It is a closed
// enumeration — there is no provision for a third variant.
type Type int

const (
	// XML databases store resources shredded from XML documents.
	XML Type = iota
	// JSON databases store resources shredded from JSON documents.
	JSON
)

// String returns the short tag used when serializing a DatabaseConfig.
func (t Type) String() string {
	switch t {
	case XML:
		return "xml"
	case JSON:
		return "json"
	default:
		return fmt.Sprintf("dbtype(%d)", int(t))
	}
}

// Parse reverse-looks-up a Type from its serialized tag. The second return
// value is false if the tag is not one of the closed set of known tags.
func Parse(tag string) (Type, bool) {
	switch tag {
	case "xml":
		return XML, true
	case "json":
		return JSON, true
	default:
		return 0, false
	}
}

// DocumentRootNode constructs the in-memory document-root node for an empty
// resource of this flavor. deweyID is an optional opaque stable identifier;
// pass nil to let the node model assign none.
func (t Type) DocumentRootNode(deweyID []byte) (node.Node, error) {
	switch t {
	case XML:
		return node.NewXMLDocumentRoot(deweyID), nil
	case JSON:
		return node.NewJSONDocumentRoot(deweyID), nil
	default:
		return node.Node{}, fmt.Errorf("dbtype: unknown type %d", int(t))
	}
}

// MarshalYAML implements yaml.Marshaler so DatabaseConfig can serialize the
// flavor as its short tag rather than the underlying int.
func (t Type) MarshalYAML() (interface{}, error) {
	if t != XML && t != JSON {
		return nil, fmt.Errorf("dbtype: cannot marshal unknown type %d", int(t))
	}
	return t.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler, the mirror of MarshalYAML.
func (t *Type) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var tag string
	if err := unmarshal(&tag); err != nil {
		return err
	}
	parsed, ok := Parse(tag)
	if !ok {
		return fmt.Errorf("dbtype: unknown type tag %q", tag)
	}
	*t = parsed
	return nil
}
