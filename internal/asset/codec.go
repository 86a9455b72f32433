package asset

import (
	"bytes"
	"fmt"

	"github.com/roach88/assetsync/internal/kind"
	"github.com/roach88/assetsync/internal/wire"
)

const (
	tagRef    byte = 0
	tagInline byte = 1
)

// maxDepth bounds inlined nesting when decoding untrusted input.
const maxDepth = 16

// Write writes n in wire form.
func Write(w *wire.Writer, n Node) error {
	switch n := n.(type) {
	case *Asset:
		if err := w.WriteByte(n.kind.Byte()); err != nil {
			return err
		}
		w.WriteChecksum(n.sum)
		w.WriteBytes(n.payload)
	case *Collection:
		writeCollection(w, n)
	default:
		return fmt.Errorf("asset: cannot write %T", n)
	}
	return w.Err()
}

func writeCollection(w *wire.Writer, c *Collection) {
	if w.WriteByte(c.kind.Byte()) != nil {
		return
	}
	w.WriteChecksum(c.sum)
	w.WriteLength(len(c.children))
	for _, ch := range c.children {
		if ch.Node != nil {
			if w.WriteByte(tagInline) != nil {
				return
			}
			writeCollection(w, ch.Node)
			continue
		}
		if w.WriteByte(tagRef) != nil {
			return
		}
		w.WriteChecksum(ch.Checksum)
	}
}

// Marshal returns the wire form of n.
func Marshal(n Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(wire.NewWriter(&buf), n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Read decodes one node. Collections are verified against their carried
// checksum; leaf payloads are verified when decoded with Asset.Decode.
func Read(r *wire.Reader) (Node, error) {
	return read(r, 0)
}

func read(r *wire.Reader, depth int) (Node, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrCorruptNode, maxDepth)
	}
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	k := kind.Kind(b)
	if !k.IsKnown() {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrCorruptNode, b)
	}
	sum := r.ReadChecksum()

	if k.IsLeaf() {
		payload := r.ReadBytes()
		if err := r.Err(); err != nil {
			return nil, err
		}
		return &Asset{kind: k, sum: sum, payload: payload}, nil
	}

	n := r.ReadLength()
	if err := r.Err(); err != nil {
		return nil, err
	}
	var children []Child
	if n > 0 {
		children = make([]Child, 0, wire.CapHint(n))
	}
	for range n {
		tag, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagRef:
			children = append(children, Ref(r.ReadChecksum()))
		case tagInline:
			child, err := read(r, depth+1)
			if err != nil {
				return nil, err
			}
			c, ok := child.(*Collection)
			if !ok {
				return nil, fmt.Errorf("%w: inlined child of %s is a leaf", ErrCorruptNode, k)
			}
			children = append(children, Inline(c))
		default:
			return nil, fmt.Errorf("%w: unknown child tag %d", ErrCorruptNode, tag)
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	var c *Collection
	if len(children) == 0 && k.IsCollection() {
		c = Empty(k)
	} else {
		c = NewCollection(k, children)
	}
	if c.sum != sum {
		return nil, fmt.Errorf("%w: %s carries %s but hashes to %s", ErrCorruptNode, k, sum.Short(), c.sum.Short())
	}
	return c, nil
}

// Unmarshal decodes a node from its wire form. Trailing bytes are an error.
func Unmarshal(data []byte) (Node, error) {
	br := bytes.NewReader(data)
	n, err := Read(wire.NewReader(br))
	if err != nil {
		return nil, err
	}
	if br.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptNode, br.Len())
	}
	return n, nil
}
