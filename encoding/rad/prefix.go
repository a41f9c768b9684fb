package rad

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Prefix is the whole verbatim-copied region that precedes a RAD file's
// chunks: the header, its three tag sections, and the file-level tag
// values (spec §3, §4.6). ReadPrefix captures these both as parsed
// structures (for the caller that needs bc/umi types to decode records)
// and as the raw bytes that make up the region, since the output rewriter
// only ever rewrites 8 bytes of that raw copy.
type Prefix struct {
	Header   *RadHeader
	FileTags *TagSection
	ReadTags *TagSection
	AlnTags  *TagSection

	BCType  IntTypeDescriptor
	UMIType IntTypeDescriptor

	// Raw is the exact byte sequence consumed while parsing the prefix.
	Raw []byte
	// HeaderLen is the byte length of Header alone within Raw; the
	// num_chunks field occupies Raw[HeaderLen-8 : HeaderLen].
	HeaderLen int64
}

// ReadPrefix reads a RAD file's header/tag-section/file-tag-value prefix
// from r, the same way collate.rs's header-copy block does: a single
// linear pass, teed into a buffer so the exact bytes can be replayed to an
// output sink with the num_chunks field patched (spec §4.6 steps 1-2).
func ReadPrefix(r io.Reader) (*Prefix, error) {
	var raw bytes.Buffer
	tee := io.TeeReader(r, &raw)

	hdr, hdrLen, err := ReadHeader(tee)
	if err != nil {
		return nil, fmt.Errorf("rad: read prefix header: %w", err)
	}

	fileTags, err := ReadTagSection(tee)
	if err != nil {
		return nil, fmt.Errorf("rad: read prefix file-level tags: %w", err)
	}
	readTags, err := ReadTagSection(tee)
	if err != nil {
		return nil, fmt.Errorf("rad: read prefix read-level tags: %w", err)
	}
	if len(readTags.Tags) < 2 {
		return nil, fmt.Errorf("rad: read-level tag section has %d tags, need at least 2 (barcode, umi)", len(readTags.Tags))
	}
	alnTags, err := ReadTagSection(tee)
	if err != nil {
		return nil, fmt.Errorf("rad: read prefix alignment-level tags: %w", err)
	}

	bcType, err := DecodeIntTypeTag(readTags.Tags[0].TypeID)
	if err != nil {
		return nil, fmt.Errorf("rad: barcode type: %w", err)
	}
	umiType, err := DecodeIntTypeTag(readTags.Tags[1].TypeID)
	if err != nil {
		return nil, fmt.Errorf("rad: umi type: %w", err)
	}

	if _, err := ReadFileTagValues(tee, fileTags.Tags); err != nil {
		return nil, fmt.Errorf("rad: read prefix file tag values: %w", err)
	}

	return &Prefix{
		Header:    hdr,
		FileTags:  fileTags,
		ReadTags:  readTags,
		AlnTags:   alnTags,
		BCType:    bcType,
		UMIType:   umiType,
		Raw:       raw.Bytes(),
		HeaderLen: hdrLen,
	}, nil
}

// RewrittenNumChunks returns a copy of p.Raw with the num_chunks field
// patched to numChunks (spec §4.6 step 2: "Rewrites the last 8 bytes of
// the fixed header... with little-endian expected_output_chunks"). The
// original Raw slice is left untouched.
func (p *Prefix) RewrittenNumChunks(numChunks uint64) []byte {
	out := make([]byte, len(p.Raw))
	copy(out, p.Raw)
	binary.LittleEndian.PutUint64(out[p.HeaderLen-8:p.HeaderLen], numChunks)
	return out
}
