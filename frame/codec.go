package frame

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Codec serializes frames for a byte stream.
type Codec interface {
	Name() string
	// Encode validates f and returns its wire form.
	Encode(f *ControlFrame) ([]byte, error)
	// Decode reads exactly one frame from r.
	Decode(r *bufio.Reader) (*ControlFrame, error)
}

const (
	CodecBinary = "binary"
	CodecJSON   = "json"
)

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case CodecBinary, "":
		return Binary{}, nil
	case CodecJSON:
		return JSON{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// Binary is the fixed 32-byte little-endian layout.
type Binary struct{}

func (Binary) Name() string { return CodecBinary }

func (Binary) Encode(f *ControlFrame) ([]byte, error) {
	return f.MarshalBinary()
}

func (Binary) Decode(r *bufio.Reader) (*ControlFrame, error) {
	var b [Size]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	f := new(ControlFrame)
	if err := f.UnmarshalBinary(b[:]); err != nil {
		return nil, err
	}
	return f, nil
}

// JSON is newline-delimited JSON with named fields.
type JSON struct{}

func (JSON) Name() string { return CodecJSON }

func (JSON) Encode(f *ControlFrame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func (JSON) Decode(r *bufio.Reader) (*ControlFrame, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && (err != io.EOF || len(bytes.TrimSpace(line)) == 0) {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	f := new(ControlFrame)
	if err := dec.Decode(f); err != nil {
		return nil, fmt.Errorf("decode: %w: %w", ErrMalformed, err)
	}
	return f, nil
}
