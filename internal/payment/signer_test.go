package payment

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortedCanonicalForm(t *testing.T) {
	s := NewSHA512Signer("secret", "vnp_", url.QueryEscape)
	fields := map[string]string{
		"vnp_TxnRef":    "12_1700",
		"vnp_Amount":    "30000",
		"vnp_OrderInfo": "Rental order 12",
		"vnp_BankCode":  "",
		"other":         "ignored",
	}

	assert.Equal(t, "vnp_Amount=30000&vnp_OrderInfo=Rental+order+12&vnp_TxnRef=12_1700", s.Canonicalize(fields))
}

func TestFixedOrderKeepsEmptyValues(t *testing.T) {
	s := NewSHA256Signer("secret", []string{"b", "a", "c"})

	assert.Equal(t, "b=2&a=&c=3", s.Canonicalize(map[string]string{"a": "", "b": "2", "c": "3", "d": "4"}))
}

func TestSignIsLowercaseHex(t *testing.T) {
	s256 := NewSHA256Signer("secret", []string{"a"})
	s512 := NewSHA512Signer("secret", "", nil)

	sig := s256.Sign("a=1")
	assert.Len(t, sig, 64)
	assert.Equal(t, strings.ToLower(sig), sig)
	assert.Len(t, s512.Sign("a=1"), 128)
}

func TestVerify(t *testing.T) {
	s := NewSHA256Signer("secret", []string{"amount", "orderId"})
	fields := map[string]string{"amount": "300", "orderId": "12_1700"}
	sig := s.Sign(s.Canonicalize(fields))

	assert.True(t, s.Verify(fields, sig))
	assert.True(t, s.Verify(fields, strings.ToUpper(sig)))
	assert.False(t, s.Verify(fields, ""))
	flipped := []byte(sig)
	if flipped[0] == '0' {
		flipped[0] = '1'
	} else {
		flipped[0] = '0'
	}
	assert.False(t, s.Verify(fields, string(flipped)))

	tampered := map[string]string{"amount": "1", "orderId": "12_1700"}
	assert.False(t, s.Verify(tampered, sig))

	other := NewSHA256Signer("other-secret", []string{"amount", "orderId"})
	assert.False(t, other.Verify(fields, sig))
}

func TestReference(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	ref := NewReference(42, at)
	assert.Equal(t, "42_1700000000123", ref)

	id, err := ParseReference(ref)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	id, err = ParseReference("7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	for _, bad := range []string{"", "_1", "abc_1", "0_5", "-3_1"} {
		_, err := ParseReference(bad)
		assert.Error(t, err, bad)
	}
}

func TestRetriedPaymentsGetDistinctReferences(t *testing.T) {
	at := time.Now()
	assert.NotEqual(t, NewReference(1, at), NewReference(1, at.Add(time.Millisecond)))
}
