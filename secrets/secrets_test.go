package secrets

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	h := NewHasher()

	envelope, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, envelope)

	assert.True(t, h.Verify("correct horse battery staple", envelope))
	assert.False(t, h.Verify("correct horse battery stable", envelope))
	assert.False(t, h.Verify("", envelope))
}

func TestHashProducesUniqueEnvelopes(t *testing.T) {
	h := NewHasher()

	e1, err := h.Hash("secret")
	require.NoError(t, err)
	e2, err := h.Hash("secret")
	require.NoError(t, err)

	// Random salts mean identical secrets never share an envelope.
	assert.NotEqual(t, e1, e2)
	assert.True(t, h.Verify("secret", e1))
	assert.True(t, h.Verify("secret", e2))
}

func TestVerifyDifferentSecretsEnvelope(t *testing.T) {
	h := NewHasher()

	other, err := h.Hash("some other secret")
	require.NoError(t, err)
	assert.False(t, h.Verify("secret", other))
}

func TestVerifyRejectsMalformedEnvelopes(t *testing.T) {
	h := NewHasher()

	valid, err := h.Hash("secret")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(valid)
	require.NoError(t, err)

	corrupt := func(mutate func(b []byte)) string {
		b := make([]byte, len(raw))
		copy(b, raw)
		mutate(b)
		return base64.StdEncoding.EncodeToString(b)
	}

	tests := []struct {
		name     string
		envelope string
	}{
		{"empty", ""},
		{"not base64", "!!not-base64!!"},
		{"truncated header", base64.StdEncoding.EncodeToString(raw[:8])},
		{"wrong version", corrupt(func(b []byte) { b[0] = 0x02 })},
		{"unknown algorithm", corrupt(func(b []byte) { binary.BigEndian.PutUint32(b[1:5], 99) })},
		{"oversized salt length", corrupt(func(b []byte) { binary.BigEndian.PutUint32(b[9:13], 1<<30) })},
		{"corrupted salt byte", corrupt(func(b []byte) { b[headerSize] ^= 0xFF })},
		{"corrupted key byte", corrupt(func(b []byte) { b[len(b)-1] ^= 0xFF })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, h.Verify("secret", tt.envelope))
		})
	}
}

func TestVerifyRejectsShortSaltOrKey(t *testing.T) {
	h := NewHasher()

	// Build a structurally valid envelope with an 8-byte salt.
	build := func(saltLen, keyLen int) string {
		buf := []byte{formatVersion}
		buf = binary.BigEndian.AppendUint32(buf, uint32(AlgorithmSHA256))
		buf = binary.BigEndian.AppendUint32(buf, defaultIterations)
		buf = binary.BigEndian.AppendUint32(buf, uint32(saltLen))
		buf = append(buf, make([]byte, saltLen+keyLen)...)
		return base64.StdEncoding.EncodeToString(buf)
	}

	assert.False(t, h.Verify("secret", build(8, 32)), "salt below 128 bits")
	assert.False(t, h.Verify("secret", build(128, 8)), "key below 128 bits")
}

func TestVerifyHonorsRecordedAlgorithm(t *testing.T) {
	// An envelope produced with SHA-512 verifies on a hasher configured for
	// SHA-256, because verification reads parameters from the envelope.
	sha512Hasher := NewHasher(WithAlgorithm(AlgorithmSHA512))
	envelope, err := sha512Hasher.Hash("secret")
	require.NoError(t, err)

	assert.True(t, NewHasher().Verify("secret", envelope))
}

func TestHashUnknownAlgorithmFails(t *testing.T) {
	h := NewHasher(WithAlgorithm(Algorithm(42)))
	_, err := h.Hash("secret")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestEnvelopeLayout(t *testing.T) {
	h := NewHasher()
	envelope, err := h.Hash("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(envelope)
	require.NoError(t, err)

	assert.Equal(t, formatVersion, raw[0])
	assert.Equal(t, uint32(AlgorithmSHA256), binary.BigEndian.Uint32(raw[1:5]))
	assert.Equal(t, uint32(defaultIterations), binary.BigEndian.Uint32(raw[5:9]))
	assert.Equal(t, uint32(defaultSaltSize), binary.BigEndian.Uint32(raw[9:13]))
	assert.Len(t, raw, headerSize+defaultSaltSize+defaultKeySize)
}
