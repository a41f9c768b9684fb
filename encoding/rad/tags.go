package rad

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Tag is a single {name, type} entry in a TagSection.
type Tag struct {
	Name   string
	TypeID byte
}

// TagSection is an ordered list of tag descriptors (spec §3). Three sections
// appear in a RAD file, in order: file-level, read-level, alignment-level.
// The first two read-level tags are always the barcode type and UMI type.
type TagSection struct {
	Tags []Tag
}

// ReadTagSection reads one TagSection: a uint16 tag count followed by that
// many {len-prefixed name, type id byte} entries.
func ReadTagSection(r io.Reader) (*TagSection, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("rad: read tag count: %w", err)
	}
	tags := make([]Tag, n)
	for i := range tags {
		name, err := readLenPrefixedString(r)
		if err != nil {
			return nil, fmt.Errorf("rad: read tag[%d] name: %w", i, err)
		}
		var typeID byte
		if err := binary.Read(r, binary.LittleEndian, &typeID); err != nil {
			return nil, fmt.Errorf("rad: read tag[%d] type id: %w", i, err)
		}
		tags[i] = Tag{Name: name, TypeID: typeID}
	}
	return &TagSection{Tags: tags}, nil
}

// ReadFileTagValues reads the raw bytes backing the file-level tag section's
// values. The core never interprets these values; it copies them through
// verbatim (spec §3), so this only needs to consume the right number of
// bytes, sized from each tag's decoded width.
func ReadFileTagValues(r io.Reader, tags []Tag) ([]byte, error) {
	total := 0
	for _, t := range tags {
		desc, err := DecodeIntTypeTag(t.TypeID)
		if err != nil {
			return nil, fmt.Errorf("rad: file tag %q: %w", t.Name, err)
		}
		total += desc.Size
	}
	buf := make([]byte, total)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("rad: read file tag values: %w", err)
	}
	return buf, nil
}
