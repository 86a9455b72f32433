package serializer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/kind"
	"github.com/roach88/assetsync/internal/wire"
)

var (
	// ErrUnsupportedKind is returned for kinds without a registered codec.
	ErrUnsupportedKind = errors.New("unsupported serialization kind")

	// ErrDuplicateCodec is returned when registering a kind twice.
	ErrDuplicateCodec = errors.New("codec already registered")

	// ErrTypeMismatch is returned when a value does not have the Go type a codec expects.
	ErrTypeMismatch = errors.New("value type does not match kind")
)

// Encoder writes value to w.
type Encoder func(ctx context.Context, value any, w *wire.Writer) error

// Decoder reads one value from r.
type Decoder func(ctx context.Context, r *wire.Reader) (any, error)

// Fingerprinter computes a leaf checksum directly from a value.
type Fingerprinter func(ctx context.Context, value any) (checksum.Checksum, error)

// Codec is the encode/decode pair for one kind.
type Codec struct {
	Encode Encoder
	Decode Decoder

	// Fingerprint is optional. When nil the leaf checksum is the hash of
	// the kind and the encoded bytes.
	Fingerprint Fingerprinter
}

// BlobStorage holds large payloads out of line.
type BlobStorage interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, name string) ([]byte, error)
}

// FileOpener opens a referenced file for fingerprinting.
type FileOpener func(path string) (io.ReadCloser, error)

// DefaultInlineThreshold is the text size, in bytes, at or above which text
// is moved to blob storage when one is configured.
const DefaultInlineThreshold = 64 * 1024

// Registry dispatches serialization by kind.
//
// Thread Safety: safe for concurrent use. Registration takes a write lock;
// encode and decode take a read lock only to look up the codec.
type Registry struct {
	mu     sync.RWMutex
	codecs map[kind.Kind]Codec

	blobs           BlobStorage
	inlineThreshold int
	openFile        FileOpener
	logger          *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithBlobStorage enables out-of-line storage for large text.
func WithBlobStorage(b BlobStorage) Option {
	return func(r *Registry) { r.blobs = b }
}

// WithInlineThreshold sets the blob threshold. Values <= 0 keep the default.
func WithInlineThreshold(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.inlineThreshold = n
		}
	}
}

// WithFileOpener overrides how reference files are opened.
func WithFileOpener(open FileOpener) Option {
	return func(r *Registry) { r.openFile = open }
}

// WithLogger sets the logger used for absorbed I/O failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a registry with codecs for every built-in leaf kind.
func New(opts ...Option) *Registry {
	r := &Registry{
		codecs:          make(map[kind.Kind]Codec),
		inlineThreshold: DefaultInlineThreshold,
		openFile:        func(path string) (io.ReadCloser, error) { return os.Open(path) },
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registerBuiltins()
	return r
}

// Register adds a codec for k. Registering a kind that already has a codec
// fails with ErrDuplicateCodec; use Replace to override a built-in.
func (r *Registry) Register(k kind.Kind, c Codec) error {
	if err := validateCodec(k, c); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.codecs[k]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCodec, k)
	}
	r.codecs[k] = c
	return nil
}

// Replace installs c for k, overriding any existing codec.
// Hosts use it to plug compiler-specific payload formats in.
func (r *Registry) Replace(k kind.Kind, c Codec) error {
	if err := validateCodec(k, c); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[k] = c
	return nil
}

func validateCodec(k kind.Kind, c Codec) error {
	if !k.IsLeaf() {
		return fmt.Errorf("%w: %s is not a leaf kind", ErrUnsupportedKind, k)
	}
	if c.Encode == nil || c.Decode == nil {
		return fmt.Errorf("codec for %s must define Encode and Decode", k)
	}
	return nil
}

// Supports reports whether k has a codec.
func (r *Registry) Supports(k kind.Kind) bool {
	_, ok := r.codec(k)
	return ok
}

// Codec returns the codec registered for k.
func (r *Registry) Codec(k kind.Kind) (Codec, bool) {
	return r.codec(k)
}

func (r *Registry) codec(k kind.Kind) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[k]
	return c, ok
}

func (r *Registry) mustCodec(k kind.Kind) (Codec, error) {
	c, ok := r.codec(k)
	if !ok {
		return Codec{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, k)
	}
	return c, nil
}

// Encode writes value using the codec for k.
func (r *Registry) Encode(ctx context.Context, k kind.Kind, value any, w *wire.Writer) error {
	c, err := r.mustCodec(k)
	if err != nil {
		return err
	}
	if err := c.Encode(ctx, value, w); err != nil {
		return fmt.Errorf("encode %s: %w", k, err)
	}
	if err := w.Err(); err != nil {
		return fmt.Errorf("encode %s: %w", k, err)
	}
	return nil
}

// EncodeBytes encodes value into a fresh byte slice.
func (r *Registry) EncodeBytes(ctx context.Context, k kind.Kind, value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Encode(ctx, k, value, wire.NewWriter(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads one value using the codec for k.
func (r *Registry) Decode(ctx context.Context, k kind.Kind, rd *wire.Reader) (any, error) {
	c, err := r.mustCodec(k)
	if err != nil {
		return nil, err
	}
	v, err := c.Decode(ctx, rd)
	if err == nil {
		err = rd.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", k, err)
	}
	return v, nil
}

// DecodeBytes decodes a value previously produced by EncodeBytes.
func (r *Registry) DecodeBytes(ctx context.Context, k kind.Kind, data []byte) (any, error) {
	return r.Decode(ctx, k, wire.NewReader(bytes.NewReader(data)))
}

// HasFingerprint reports whether k computes its checksum from the value
// rather than from its encoded bytes.
func (r *Registry) HasFingerprint(k kind.Kind) bool {
	c, ok := r.codec(k)
	return ok && c.Fingerprint != nil
}

// Checksum computes the leaf checksum of value under kind k.
func (r *Registry) Checksum(ctx context.Context, k kind.Kind, value any) (checksum.Checksum, error) {
	c, err := r.mustCodec(k)
	if err != nil {
		return checksum.Null, err
	}
	if c.Fingerprint != nil {
		sum, err := c.Fingerprint(ctx, value)
		if err != nil {
			return checksum.Null, fmt.Errorf("fingerprint %s: %w", k, err)
		}
		return sum, nil
	}
	data, err := r.EncodeBytes(ctx, k, value)
	if err != nil {
		return checksum.Null, err
	}
	return checksum.CreateForKind(k.Byte(), data), nil
}

// as asserts that value is a non-nil *T.
func as[T any](k kind.Kind, value any) (*T, error) {
	v, ok := value.(*T)
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s cannot encode %T", ErrTypeMismatch, k, value)
	}
	return v, nil
}

// unavailable is implemented by values that decode to a placeholder when
// their backing storage could not be read.
type unavailable interface {
	IsUnavailable() bool
}

// Verify checks that a decoded leaf matches the checksum it was sent under.
// payload is the encoded form value was decoded from. Placeholder values
// for unreadable storage are accepted as-is.
func (r *Registry) Verify(ctx context.Context, k kind.Kind, value any, payload []byte, want checksum.Checksum) (bool, error) {
	if !r.HasFingerprint(k) {
		if !r.Supports(k) {
			return false, fmt.Errorf("%w: %s", ErrUnsupportedKind, k)
		}
		return checksum.CreateForKind(k.Byte(), payload) == want, nil
	}
	if u, ok := value.(unavailable); ok && u.IsUnavailable() {
		return true, nil
	}
	got, err := r.Checksum(ctx, k, value)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
