package storage

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrMalformedAsset is returned when a stored document cannot be decoded.
var ErrMalformedAsset = errors.New("malformed asset document")

// Extension is the file extension of asset documents.
const Extension = ".yaml"

// EncodeAsset renders an asset as a YAML document.
func EncodeAsset(a *Asset) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(a); err != nil {
		return nil, fmt.Errorf("encode asset: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode asset: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeAsset parses a YAML asset document. A document without a kind is
// rejected.
func DecodeAsset(data []byte) (*Asset, error) {
	var a Asset
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedAsset, err)
	}
	if a.Tag == "" {
		return nil, fmt.Errorf("%w: missing kind", ErrMalformedAsset)
	}
	return &a, nil
}

// PeekTag reads only the kind of a YAML asset document.
func PeekTag(data []byte) (TypeTag, error) {
	var head struct {
		Kind TypeTag `yaml:"kind"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedAsset, err)
	}
	return head.Kind, nil
}

// EncodePayload renders a payload map as YAML; nil payloads encode empty.
func EncodePayload(p map[string]any) (string, error) {
	if len(p) == 0 {
		return "", nil
	}
	out, err := yaml.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(out), nil
}

// DecodePayload parses a payload written by EncodePayload.
func DecodePayload(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var p map[string]any
	if err := yaml.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("%w: payload: %w", ErrMalformedAsset, err)
	}
	return p, nil
}
