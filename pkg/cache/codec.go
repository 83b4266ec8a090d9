package cache

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

// Codec turns entries into bytes and back.
type Codec[T any] interface {
	Encode(Entry[T]) ([]byte, error)
	Decode([]byte) (Entry[T], error)
}

// Supported codec formats.
const (
	FormatGob  = "gob"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// NewCodec returns the codec for format. A compression level above zero
// wraps it in zstd compression.
func NewCodec[T any](format string, compressionLevel int) (Codec[T], error) {
	var c Codec[T]
	switch format {
	case "", FormatGob:
		c = GobCodec[T]{}
	case FormatJSON:
		c = JSONCodec[T]{}
	case FormatYAML:
		c = YAMLCodec[T]{}
	default:
		return nil, fmt.Errorf("unknown codec format %q", format)
	}

	if compressionLevel > 0 {
		return NewZstdCodec(c, compressionLevel)
	}
	return c, nil
}

// GobCodec encodes entries with encoding/gob.
type GobCodec[T any] struct{}

func (GobCodec[T]) Encode(e Entry[T]) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec[T]) Decode(data []byte) (Entry[T], error) {
	var e Entry[T]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return Entry[T]{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return checkDecoded(e)
}

// JSONCodec encodes entries as JSON.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(e Entry[T]) ([]byte, error) {
	return json.Marshal(e)
}

func (JSONCodec[T]) Decode(data []byte) (Entry[T], error) {
	var e Entry[T]
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry[T]{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return checkDecoded(e)
}

// YAMLCodec encodes entries as YAML, which keeps cache files readable.
type YAMLCodec[T any] struct{}

func (YAMLCodec[T]) Encode(e Entry[T]) ([]byte, error) {
	return yaml.Marshal(e)
}

func (YAMLCodec[T]) Decode(data []byte) (Entry[T], error) {
	var e Entry[T]
	if err := yaml.Unmarshal(data, &e); err != nil {
		return Entry[T]{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return checkDecoded(e)
}

// checkDecoded rejects entries without an expiry. Every stored entry has
// one, so a zero time means the payload was not a cache entry.
func checkDecoded[T any](e Entry[T]) (Entry[T], error) {
	if e.ExpiresAt.IsZero() {
		return Entry[T]{}, fmt.Errorf("%w: missing expiry", ErrCorrupt)
	}
	return e, nil
}

// ZstdCodec compresses the output of another codec.
type ZstdCodec[T any] struct {
	inner   Codec[T]
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCodec wraps inner with zstd compression at the given level (1-22).
func NewZstdCodec[T any](inner Codec[T], level int) (*ZstdCodec[T], error) {
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &ZstdCodec[T]{inner: inner, encoder: encoder, decoder: decoder}, nil
}

func (z *ZstdCodec[T]) Encode(e Entry[T]) ([]byte, error) {
	data, err := z.inner.Encode(e)
	if err != nil {
		return nil, err
	}
	return z.encoder.EncodeAll(data, nil), nil
}

func (z *ZstdCodec[T]) Decode(data []byte) (Entry[T], error) {
	raw, err := z.decoder.DecodeAll(data, nil)
	if err != nil {
		return Entry[T]{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return z.inner.Decode(raw)
}
