package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	out, err := MarshalCanonical(IRObject{
		"b": IRInt(2),
		"a": IRArray{IRBool(true), IRString("x")},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,"x"],"b":2}`, string(out))
}

func TestMarshalCanonicalUTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00, which sort before U+E000
	// in UTF-16 but after it in UTF-8 byte order.
	out, err := MarshalCanonical(IRObject{
		"\uE000":     IRInt(1),
		"\U0001F600": IRInt(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uE000\":1}", string(out))
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	out, err := MarshalCanonical(IRString("<a&b>\u2028"))
	require.NoError(t, err)
	assert.Equal(t, "\"<a&b>\u2028\"", string(out))
}

func TestMarshalCanonicalEscapesControlCharacters(t *testing.T) {
	out, err := MarshalCanonical(IRString("q\"\\\n\t\x01"))
	require.NoError(t, err)
	assert.Equal(t, `"q\"\\\n\t\u0001"`, string(out))
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	composed, err := MarshalCanonical(IRString("caf\u00e9"))
	require.NoError(t, err)
	decomposed, err := MarshalCanonical(IRString("cafe\u0301"))
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonicalRejectsFloatsAndNull(t *testing.T) {
	_, err := MarshalCanonical(1.5)
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"f": 0.1})
	assert.Error(t, err)

	_, err = MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestMarshalCanonicalGoContainers(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{"n": 3, "l": []any{"a", int64(4)}})
	require.NoError(t, err)
	assert.Equal(t, `{"l":["a",4],"n":3}`, string(out))
}
