package store

import (
	"bytes"
	"encoding/base64"
	"encoding/gob"
	"fmt"
	"os"
)

// Codec serializes non-primitive cell values. Dispatch is resolved once at
// schema-declaration time: each non-primitive kind is bound to one codec
// when the store is opened, never per cell.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// GobCodec is the default codec for KindObject and KindBlob cells.
// Concrete types stored through interface cells must be registered with
// gob.Register by the caller, same as any gob interface encoding.
type GobCodec struct{}

// Encode implements Codec.
func (GobCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (GobCodec) Decode(data []byte) (any, error) {
	var v any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return v, nil
}

// encodeInline produces the TEXT cell for a KindObject value.
func encodeInline(c Codec, v any) (string, error) {
	data, err := c.Encode(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// decodeInline is the inverse of encodeInline.
func decodeInline(c Codec, cell string) (any, error) {
	data, err := base64.StdEncoding.DecodeString(cell)
	if err != nil {
		return nil, fmt.Errorf("decode inline cell: %w", err)
	}
	return c.Decode(data)
}

// BlobRef is the read-side handle for a KindBlob or KindState cell. The
// value itself stays on disk until Load is called, so large checkpoints are
// not pulled into memory just to scan a table.
type BlobRef struct {
	// Path is the absolute path of the side file.
	Path string

	codec Codec
}

// Load reads and decodes the side file. A missing file fails loudly with a
// BLOB_MISSING error: the persisted row recorded a written cell, so absence
// means corruption, not a null.
func (r *BlobRef) Load() (any, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newBlobMissingError(r.Path)
		}
		return nil, fmt.Errorf("read side file: %w", err)
	}
	if r.codec == nil {
		return nil, fmt.Errorf("no codec registered for side file %s", r.Path)
	}
	return r.codec.Decode(data)
}
