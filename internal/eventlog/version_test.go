package eventlog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntity struct{}

func TestVersionNothingIsZeroValue(t *testing.T) {
	var v Version[testEntity]
	assert.True(t, v.IsNothing())
	assert.Equal(t, int64(-1), v.Int64())
	assert.Equal(t, "Nothing", v.String())
}

func TestVersionNewClampsNegative(t *testing.T) {
	assert.True(t, New[testEntity](-5).IsNothing())
	assert.False(t, New[testEntity](0).IsNothing())
}

func TestVersionNext(t *testing.T) {
	v := Nothing[testEntity]().Next()
	assert.Equal(t, int64(0), v.Int64())
	assert.Equal(t, int64(1), v.Next().Int64())
}

func TestVersionJSONRoundTrip(t *testing.T) {
	v := New[testEntity](7)
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "7", string(raw))

	var got Version[testEntity]
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, v, got)
}

func TestVersionJSONRoundTripNothing(t *testing.T) {
	raw, err := json.Marshal(Nothing[testEntity]())
	require.NoError(t, err)
	assert.Equal(t, "-1", string(raw))

	var got Version[testEntity]
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.True(t, got.IsNothing())
}

func TestExpectAnyIsNil(t *testing.T) {
	assert.Nil(t, ExpectAny[testEntity]())
}

func TestExpectNothingRequiresNoStream(t *testing.T) {
	e := ExpectNothing[testEntity]()
	require.NotNil(t, e)
	assert.True(t, e.version.IsNothing())
}

func TestExpectExact(t *testing.T) {
	e := ExpectExact(New[testEntity](3))
	require.NotNil(t, e)
	assert.Equal(t, int64(3), e.version.Int64())
}
