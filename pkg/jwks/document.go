// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package jwks

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Document is a JSON Web Key Set as published by the identity provider.
type Document struct {
	Keys []JSONWebKey `json:"keys"`
}

// JSONWebKey is the subset of RFC 7517 fields needed to build an RSA verification key.
type JSONWebKey struct {
	KeyID     string `json:"kid"`
	KeyType   string `json:"kty,omitempty"`
	Algorithm string `json:"alg,omitempty"`
	Use       string `json:"use,omitempty"`
	N         string `json:"n"`
	E         string `json:"e"`
}

// ParseDocument decodes a JWKS document. A document without a "keys" array is rejected.
func ParseDocument(data []byte) (*Document, error) {
	var raw struct {
		Keys *[]JSONWebKey `json:"keys"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if raw.Keys == nil {
		return nil, fmt.Errorf("%w: missing keys array", ErrInvalidDocument)
	}
	return &Document{Keys: *raw.Keys}, nil
}

// Lookup returns the key with the given key id.
func (d *Document) Lookup(kid string) (*JSONWebKey, error) {
	for i := range d.Keys {
		if d.Keys[i].KeyID == kid {
			return &d.Keys[i], nil
		}
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// RSAPublicKey builds the RSA public key from the base64url encoded modulus and exponent.
func (k *JSONWebKey) RSAPublicKey() (*rsa.PublicKey, error) {
	if k.KeyType != "" && k.KeyType != "RSA" {
		return nil, fmt.Errorf("%w: unsupported key type %q", ErrMalformed, k.KeyType)
	}
	if k.N == "" || k.E == "" {
		return nil, fmt.Errorf("%w: key %q is missing modulus or exponent", ErrMalformed, k.KeyID)
	}

	nBytes, err := decodeSegment(k.N)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid modulus: %v", ErrMalformed, err)
	}
	eBytes, err := decodeSegment(k.E)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid exponent: %v", ErrMalformed, err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() < 2 || e.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("%w: exponent out of range", ErrMalformed)
	}
	n := new(big.Int).SetBytes(nBytes)
	if n.Sign() <= 0 {
		return nil, fmt.Errorf("%w: empty modulus", ErrMalformed)
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// decodeSegment accepts both padded and unpadded base64url.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
