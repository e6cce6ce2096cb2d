package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"sort"
	"strings"
)

// Signer canonicalizes callback and request fields and signs them with a shared secret.
type Signer interface {
	Canonicalize(fields map[string]string) string
	Sign(canonical string) string
	Verify(fields map[string]string, signature string) bool
}

// HMACSigner signs "k1=v1&k2=v2" strings with an HMAC.
//
// Keys are taken from Fields in the given order. When Fields is empty every key starting
// with Prefix is used, sorted ascending.
type HMACSigner struct {
	Hash      func() hash.Hash
	Secret    []byte
	Fields    []string
	Prefix    string
	SkipEmpty bool
	Encode    func(string) string
}

func NewSHA256Signer(secret string, fields []string) *HMACSigner {
	return &HMACSigner{Hash: sha256.New, Secret: []byte(secret), Fields: fields}
}

func NewSHA512Signer(secret, prefix string, encode func(string) string) *HMACSigner {
	return &HMACSigner{Hash: sha512.New, Secret: []byte(secret), Prefix: prefix, SkipEmpty: true, Encode: encode}
}

func (s *HMACSigner) keys(fields map[string]string) []string {
	if len(s.Fields) > 0 {
		return s.Fields
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if strings.HasPrefix(k, s.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s *HMACSigner) Canonicalize(fields map[string]string) string {
	var b strings.Builder
	for _, k := range s.keys(fields) {
		v := fields[k]
		if s.SkipEmpty && v == "" {
			continue
		}
		if s.Encode != nil {
			v = s.Encode(v)
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String()
}

func (s *HMACSigner) Sign(canonical string) string {
	mac := hmac.New(s.Hash, s.Secret)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *HMACSigner) Verify(fields map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	expected := s.Sign(s.Canonicalize(fields))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
