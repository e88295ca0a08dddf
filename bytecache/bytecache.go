// Package bytecache implements the bytecode cache file format described
// in spec.md §6 ("Persisted state"): a 4-byte magic, a 1-byte format
// version, then contents the core spec declares opaque. This package is
// the one place that opaqueness gets a concrete shape.
//
// Grounded on the teacher's vm/dist/wire.go (CBOR envelopes through a
// canonical cbor.EncMode, content-hash verification) for the encoding
// idiom, and vm/image_writer.go / vm/image_encoding.go (magic-prefixed
// binary image, a tagged encoding for constant-pool values) for the
// file-layout idiom. zstd compression sits inside the opaque region,
// between the header and the CBOR envelope.
package bytecache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/buzz-lang/buzz/vm"
)

// Magic identifies a buzz bytecode cache file.
var Magic = [4]byte{'B', 'Z', 'Z', 'C'}

// Version is the current cache format version. Bump it whenever the
// envelope's shape changes incompatibly; Load refuses any other value.
const Version byte = 1

// HeaderSize is magic (4 bytes) + version (1 byte).
const HeaderSize = 5

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecache: failed to build CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ErrBadMagic is returned by Load when the file does not start with Magic.
type ErrBadMagic struct{ Got [4]byte }

func (e *ErrBadMagic) Error() string {
	return fmt.Sprintf("bytecache: bad magic %q, expected %q", e.Got, Magic)
}

// ErrUnsupportedVersion is returned by Load for any version byte other
// than Version.
type ErrUnsupportedVersion struct{ Got byte }

func (e *ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("bytecache: unsupported cache version %d (want %d)", e.Got, Version)
}

// ErrUnsupportedConstant is returned by Save when a chunk's constant
// pool holds a value this format cannot serialize (only Null, Bool,
// Int, Float, and String constants round-trip; a cached chunk with any
// other constant kind — a Function, a Type, ... — must be recompiled
// rather than loaded from cache).
type ErrUnsupportedConstant struct{ Kind vm.ValueKind }

func (e *ErrUnsupportedConstant) Error() string {
	return fmt.Sprintf("bytecache: constant pool holds an unsupported value kind %d", e.Kind)
}

// constantTag discriminates the envelope's reduced constant encoding —
// the same "one tag byte, kind-specific payload field" idiom as the
// teacher's imageTag* scheme (vm/image_encoding.go), narrowed to the
// handful of kinds that ever appear as compiled-literal constants.
type constantTag uint8

const (
	tagNull constantTag = iota
	tagBool
	tagInt
	tagFloat
	tagString
)

type encodedConstant struct {
	Tag constantTag `cbor:"t"`
	B   bool        `cbor:"b,omitempty"`
	I   int64       `cbor:"i,omitempty"`
	F   float64     `cbor:"f,omitempty"`
	S   string      `cbor:"s,omitempty"`
}

// envelope is the opaque region's actual shape: {ChunkName, SourceHash,
// Constants, Instructions} plus the line table needed to reconstruct a
// usable *vm.Chunk (spec.md §6 mentions only the first four fields by
// name; Lines is this package's own addition so a loaded chunk can
// still produce accurate diagnostics).
type envelope struct {
	ChunkName    string            `cbor:"name"`
	SourceHash   [32]byte          `cbor:"hash"`
	Constants    []encodedConstant `cbor:"constants"`
	Instructions []byte            `cbor:"code"`
	Lines        []int             `cbor:"lines"`
}

func encodeConstant(v vm.Value) (encodedConstant, error) {
	switch v.Kind() {
	case vm.KindNull:
		return encodedConstant{Tag: tagNull}, nil
	case vm.KindBool:
		return encodedConstant{Tag: tagBool, B: v.AsBool()}, nil
	case vm.KindInt:
		return encodedConstant{Tag: tagInt, I: v.AsInt()}, nil
	case vm.KindFloat:
		return encodedConstant{Tag: tagFloat, F: v.AsFloat()}, nil
	case vm.KindObj:
		if s, ok := v.ObjOrNil().(*vm.StringObj); ok {
			return encodedConstant{Tag: tagString, S: s.String()}, nil
		}
	}
	return encodedConstant{}, &ErrUnsupportedConstant{Kind: v.Kind()}
}

func decodeConstant(m *vm.VM, e encodedConstant) vm.Value {
	switch e.Tag {
	case tagBool:
		return vm.BoolValue(e.B)
	case tagInt:
		return vm.IntValue(e.I)
	case tagFloat:
		return vm.FloatValue(e.F)
	case tagString:
		return vm.ObjValue(m.InternString(e.S))
	default:
		return vm.Null
	}
}

// Save encodes chunk into the cache format and writes it to w:
// magic + version header, then a zstd-compressed CBOR envelope.
func Save(w io.Writer, chunkName string, sourceHash [32]byte, chunk *vm.Chunk) error {
	env := envelope{
		ChunkName:    chunkName,
		SourceHash:   sourceHash,
		Instructions: chunk.Code,
		Lines:        chunk.Lines,
	}
	env.Constants = make([]encodedConstant, len(chunk.Constants))
	for i, c := range chunk.Constants {
		ec, err := encodeConstant(c)
		if err != nil {
			return fmt.Errorf("bytecache: constant %d: %w", i, err)
		}
		env.Constants[i] = ec
	}

	payload, err := cborEncMode.Marshal(&env)
	if err != nil {
		return fmt.Errorf("bytecache: marshal envelope: %w", err)
	}

	if _, err := w.Write(Magic[:]); err != nil {
		return err
	}
	if _, err := w.Write([]byte{Version}); err != nil {
		return err
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("bytecache: zstd writer: %w", err)
	}
	if _, err := zw.Write(payload); err != nil {
		zw.Close()
		return fmt.Errorf("bytecache: zstd write: %w", err)
	}
	return zw.Close()
}

// Loaded holds a decoded cache entry, rematerialized against the
// supplied VM's intern table so string constants share identity with
// everything else the VM interns (§3.3's interning invariant holds
// across a cache round-trip too).
type Loaded struct {
	ChunkName  string
	SourceHash [32]byte
	Chunk      *vm.Chunk
}

// Load reads and decodes a cache file produced by Save, interning any
// string constants through m.
func Load(m *vm.VM, r io.Reader) (*Loaded, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("bytecache: read header: %w", err)
	}
	var got [4]byte
	copy(got[:], header[:4])
	if got != Magic {
		return nil, &ErrBadMagic{Got: got}
	}
	if header[4] != Version {
		return nil, &ErrUnsupportedVersion{Got: header[4]}
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("bytecache: zstd reader: %w", err)
	}
	defer zr.Close()

	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("bytecache: zstd read: %w", err)
	}

	var env envelope
	if err := cbor.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("bytecache: unmarshal envelope: %w", err)
	}

	chunk := &vm.Chunk{
		Code:      env.Instructions,
		Lines:     env.Lines,
		Constants: make([]vm.Value, len(env.Constants)),
	}
	for i, ec := range env.Constants {
		chunk.Constants[i] = decodeConstant(m, ec)
	}

	return &Loaded{ChunkName: env.ChunkName, SourceHash: env.SourceHash, Chunk: chunk}, nil
}

// Bytes is a convenience wrapper around Save for callers that want an
// in-memory blob (e.g. before writing it under a content-addressed
// name, or embedding it — teacher analogue: //go:embed maggie.image in
// cmd/mag/main.go).
func Bytes(chunkName string, sourceHash [32]byte, chunk *vm.Chunk) ([]byte, error) {
	var buf bytes.Buffer
	if err := Save(&buf, chunkName, sourceHash, chunk); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
