package featureserver

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Accessors(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{
		"attributes": {
			"ID": "42",
			"NUM": 17,
			"ZERO": 0,
			"TXT": " 9 ",
			"NULL": null,
			"LAT": -23.55,
			"AGENDA": 1772964000000
		},
		"geometry": {"x": -46.63, "y": -23.55}
	}`), &r))

	assert.Equal(t, "42", r.String("ID"))
	assert.Equal(t, "17", r.String("NUM"))
	assert.Equal(t, "", r.String("NULL"))
	assert.Equal(t, "", r.String("MISSING"))

	n, ok := r.Int("NUM")
	assert.True(t, ok)
	assert.Equal(t, 17, n)

	_, ok = r.Int("ZERO")
	assert.False(t, ok, "zero means no override")
	_, ok = r.Int("NULL")
	assert.False(t, ok)

	n, ok = r.Int("TXT")
	assert.True(t, ok)
	assert.Equal(t, 9, n)

	assert.InDelta(t, -23.55, r.Float("LAT"), 1e-9)
	assert.Zero(t, r.Float("MISSING"))

	at, ok := r.Time("AGENDA", time.UTC)
	require.True(t, ok)
	assert.Equal(t, int64(1772964000000), EpochMillis(at))
	_, ok = r.Time("NULL", nil)
	assert.False(t, ok)

	require.NotNil(t, r.Geometry)
	assert.InDelta(t, -46.63, r.Geometry.X, 1e-9)
}
