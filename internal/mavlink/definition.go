package mavlink

import (
	"fmt"
	"sort"
)

// Field describes one field of a message definition.
type Field struct {
	Name      string
	Type      string // C type name as used in the XML definitions, e.g. "int16_t"
	ArrayLen  int
	Extension bool
}

func (f Field) elemSize() int {
	switch f.Type {
	case "char", "int8_t", "uint8_t":
		return 1
	case "int16_t", "uint16_t":
		return 2
	case "int32_t", "uint32_t", "float":
		return 4
	case "int64_t", "uint64_t", "double":
		return 8
	default:
		panic(fmt.Sprintf("mavlink: unknown field type %q", f.Type))
	}
}

func (f Field) wireSize() int {
	if f.ArrayLen > 0 {
		return f.elemSize() * f.ArrayLen
	}
	return f.elemSize()
}

// wireOrder returns base fields sorted by element size (largest first, stable)
// followed by extension fields in declaration order.
func wireOrder(fields []Field) []Field {
	var base, ext []Field
	for _, f := range fields {
		if f.Extension {
			ext = append(ext, f)
		} else {
			base = append(base, f)
		}
	}
	sort.SliceStable(base, func(i, j int) bool {
		return base[i].elemSize() > base[j].elemSize()
	})
	return append(base, ext...)
}

// Definition binds a message id to its layout and payload decoder.
type Definition struct {
	ID        uint32
	Name      string
	Fields    []Field
	CRCExtra  byte
	Length    int // full payload length including extensions
	MinLength int // base payload length

	decode func(payload []byte) Message
}

// NewDefinition builds a Definition and derives CRCExtra and the payload
// lengths from the field list. decode receives a payload already padded to
// Length bytes.
func NewDefinition(id uint32, name string, fields []Field, decode func([]byte) Message) *Definition {
	def := &Definition{
		ID:       id,
		Name:     name,
		Fields:   fields,
		CRCExtra: computeCRCExtra(name, fields),
		decode:   decode,
	}
	for _, f := range fields {
		def.Length += f.wireSize()
		if !f.Extension {
			def.MinLength += f.wireSize()
		}
	}
	return def
}

// Dialect is the set of message definitions the decoder can validate.
// Frames carrying any other message id cannot be checksummed and are
// treated as noise.
type Dialect struct {
	defs map[uint32]*Definition
}

// NewDialect returns a dialect containing defs. Later definitions with a
// duplicate id replace earlier ones.
func NewDialect(defs ...*Definition) *Dialect {
	d := &Dialect{defs: make(map[uint32]*Definition, len(defs))}
	for _, def := range defs {
		d.defs[def.ID] = def
	}
	return d
}

// Lookup returns the definition for id.
func (d *Dialect) Lookup(id uint32) (*Definition, bool) {
	def, ok := d.defs[id]
	return def, ok
}

// Names returns the message names in the dialect ordered by id.
func (d *Dialect) Names() []string {
	ids := make([]uint32, 0, len(d.defs))
	for id := range d.defs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = d.defs[id].Name
	}
	return names
}
