package serializer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/ir"
	"github.com/roach88/assetsync/internal/kind"
	"github.com/roach88/assetsync/internal/wire"
)

// Text representation tags.
const (
	textInline byte = 0
	textBlob   byte = 1
)

func (r *Registry) encodeSourceText(ctx context.Context, value any, w *wire.Writer) error {
	v, err := as[ir.SourceText](kind.SourceText, value)
	if err != nil {
		return err
	}
	if r.blobs == nil || len(v.Content) < r.inlineThreshold {
		if err := w.WriteByte(textInline); err != nil {
			return err
		}
		w.WriteString(v.Encoding)
		w.WriteString(v.Content)
		return nil
	}

	name, err := r.blobs.Put(ctx, []byte(v.Content))
	if err != nil {
		return fmt.Errorf("store text blob: %w", err)
	}
	if err := w.WriteByte(textBlob); err != nil {
		return err
	}
	w.WriteString(v.Encoding)
	w.WriteString(name)
	w.WriteInt64(int64(len(v.Content)))
	return nil
}

func (r *Registry) decodeSourceText(ctx context.Context, rd *wire.Reader) (any, error) {
	tag, err := rd.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case textInline:
		return &ir.SourceText{
			Encoding: rd.ReadString(),
			Content:  rd.ReadString(),
		}, nil
	case textBlob:
		encoding := rd.ReadString()
		name := rd.ReadString()
		size := rd.ReadInt64()
		if rd.Err() != nil {
			return nil, rd.Err()
		}
		content, err := r.readBlob(ctx, name, size)
		if err != nil {
			r.logger.Warn("text blob unavailable",
				"blob", name,
				"error", err,
			)
			return &ir.SourceText{Encoding: encoding, Unavailable: true}, nil
		}
		return &ir.SourceText{Encoding: encoding, Content: string(content)}, nil
	default:
		return nil, fmt.Errorf("unknown text representation tag %d", tag)
	}
}

func (r *Registry) readBlob(ctx context.Context, name string, size int64) ([]byte, error) {
	if r.blobs == nil {
		return nil, fmt.Errorf("no blob storage configured")
	}
	data, err := r.blobs.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("blob %s has %d bytes, expected %d", name, len(data), size)
	}
	return data, nil
}

// fingerprintSourceText hashes the logical text so inline and blob-backed
// representations of the same content share a checksum.
func fingerprintSourceText(_ context.Context, value any) (checksum.Checksum, error) {
	v, err := as[ir.SourceText](kind.SourceText, value)
	if err != nil {
		return checksum.Null, err
	}
	var buf bytes.Buffer
	w := wire.NewWriter(&buf)
	w.WriteString(v.Encoding)
	w.WriteString(v.Content)
	if err := w.Err(); err != nil {
		return checksum.Null, err
	}
	return checksum.CreateForKind(kind.SourceText.Byte(), buf.Bytes()), nil
}
