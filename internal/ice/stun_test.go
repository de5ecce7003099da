package ice

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"hash/crc32"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageIntegrityRoundTrip(t *testing.T) {
	password := "hello"
	transactionID := "0123456789AB"
	raddr := &net.UDPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 5678}

	msg := newStunBindingResponse(transactionID, raddr, password)
	assert.True(t, msg.verifyMessageIntegrity(password))
	assert.False(t, msg.verifyMessageIntegrity("wrong password"))
}

func TestFingerprintRoundTrip(t *testing.T) {
	password := "hello"
	transactionID := "0123456789AB"
	raddr := &net.UDPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 5678}

	msg := newStunBindingResponse(transactionID, raddr, password)
	assert.True(t, msg.verifyFingerprint())
}

func TestCrc32TableEntryOne(t *testing.T) {
	// Pins the IEEE 802.3 CRC-32 polynomial table this codec relies on
	// (reflected, init/final XOR 0xFFFFFFFF): table[1] must be 0x77073096.
	table := crc32.MakeTable(crc32.IEEE)
	assert.Equal(t, uint32(0x77073096), table[1])
}

func TestHmacSha1EmptyVector(t *testing.T) {
	// HMAC-SHA1 with an empty key over an empty message is a well-known
	// test vector used to pin the MESSAGE-INTEGRITY primitive.
	sig := hmac.New(sha1.New, nil)
	sig.Write(nil)
	assert.Equal(t, "fbdb1d1b18aa6c08324b7d64b71fb76370690e1d", hex.EncodeToString(sig.Sum(nil)))
}

func TestParseStunMessageRoundTrip(t *testing.T) {
	b := []byte{
		0x00, 0x01, 0x00, 0x4c, 0x21, 0x12, 0xa4, 0x42,
		0x56, 0x41, 0x66, 0x33, 0x5a, 0x49, 0x73, 0x4c,
		0x31, 0x64, 0x2f, 0x46, 0x00, 0x06, 0x00, 0x09,
		0x74, 0x6c, 0x47, 0x61, 0x3a, 0x6e, 0x33, 0x45,
		0x33, 0x00, 0x00, 0x00, 0xc0, 0x57, 0x00, 0x04,
		0x00, 0x01, 0x00, 0x0a, 0x80, 0x29, 0x00, 0x08,
		0x57, 0xfa, 0x3a, 0xdb, 0xb9, 0x81, 0x0a, 0xdd,
		0x00, 0x24, 0x00, 0x04, 0x6e, 0x7f, 0x1e, 0xff,
		0x00, 0x08, 0x00, 0x14, 0x16, 0xae, 0x21, 0xab,
		0x58, 0xa5, 0xba, 0x5f, 0x5d, 0x1d, 0xfe, 0xde,
		0xc5, 0x65, 0x52, 0xf5, 0x6f, 0x08, 0x60, 0x37,
		0x80, 0x28, 0x00, 0x04, 0x31, 0xfd, 0x4e, 0x69,
	}

	msg, err := parseStunMessage(b)
	require.NoError(t, err)
	require.NotNil(t, msg)

	b2 := msg.Bytes()
	assert.True(t, bytes.Equal(b, b2), "serialized STUN message not equal to original")

	msg2 := newStunMessage(msg.class, msg.method, msg.transactionID)
	for _, attr := range msg.attributes {
		msg2.addAttribute(attr.Type, attr.Value)
	}
	b3 := msg2.Bytes()
	assert.True(t, bytes.Equal(b, b3), "reconstructed STUN message not equal to original")
}

func TestNewStunMessageHeaderRoundTrip(t *testing.T) {
	msg := newStunMessage(stunRequest, 0, "0123456789AB")

	msg2, err := parseStunMessage(msg.Bytes())
	require.NoError(t, err)
	assert.Equal(t, msg.length, msg2.length)
	assert.Equal(t, msg.class, msg2.class)
	assert.Equal(t, msg.method, msg2.method)
	assert.Equal(t, msg.transactionID, msg2.transactionID)
}

func TestPad4(t *testing.T) {
	for val := uint16(0); val < 10; val++ {
		want := (4 - int(val%4)) % 4
		assert.Equal(t, want, pad4(val), "pad4(%d)", val)
	}
}

func TestParseStunMessageTooShort(t *testing.T) {
	msg, err := parseStunMessage([]byte{0, 1, 2})
	assert.NoError(t, err)
	assert.Nil(t, msg)
}

func TestRoleConflictResponseErrorCode(t *testing.T) {
	msg := newStunRoleConflictResponse("0123456789AB", "hello")
	assert.Equal(t, 487, msg.getErrorCode())
	assert.True(t, msg.verifyMessageIntegrity("hello"))
	assert.True(t, msg.verifyFingerprint())
}

func TestXorMappedAddressRoundTrip(t *testing.T) {
	transactionID := "0123456789AB"
	msg := newStunMessage(stunSuccessResponse, stunBindingMethod, transactionID)
	addr := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 42), Port: 4242}
	msg.setXorMappedAddress(addr)

	mapped := msg.getMappedAddress()
	require.NotNil(t, mapped)
	assert.Equal(t, addr.Port, mapped.Port)
	assert.True(t, addr.IP.Equal(mapped.IP))
}
