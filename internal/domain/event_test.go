package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestAccess(t *testing.T) Access {
	t.Helper()
	fields, err := ParseLine(testLine)
	require.NoError(t, err)
	a, err := NewAccess(fields)
	require.NoError(t, err)
	return a
}

func TestAssemble(t *testing.T) {
	t.Run("enriched event", func(t *testing.T) {
		access := buildTestAccess(t)

		event, skipped, err := Assemble(access, testAttributes())
		require.NoError(t, err)
		assert.False(t, skipped)

		assert.Equal(t, map[string][]string{"q": {"test"}}, event.Access.Query)
		assert.Equal(t, 200, event.Access.Status)
		assert.Equal(t, "2.27 KiB", event.Access.Size)
		assert.Nil(t, event.Access.Referer)
		assert.Equal(t, "X", event.City.Name)
		assert.Equal(t, "Y", event.City.Region)
		assert.Equal(t, "Zland", event.City.Country.Name)
		assert.Equal(t, "Z", event.City.Country.Code)
		assert.Equal(t, Continent{Code: "AS", Name: "Asia"}, event.City.Country.Continent)
		assert.Equal(t, Position{Latitude: 1, Longitude: 2}, event.City.Position)
	})

	t.Run("bogon is skipped without error", func(t *testing.T) {
		access := buildTestAccess(t)
		for _, attrs := range []Attributes{
			{IP: "10.0.0.1", Bogon: true},
			{IP: "10.0.0.1", Bogon: true, Loc: "garbage"},
		} {
			event, skipped, err := Assemble(access, attrs)
			require.NoError(t, err)
			assert.True(t, skipped)
			assert.Equal(t, Event{}, event)
		}
	})

	t.Run("incomplete bag is an error", func(t *testing.T) {
		_, skipped, err := Assemble(buildTestAccess(t), Attributes{IP: "203.0.113.5"})
		assert.False(t, skipped)
		require.ErrorIs(t, err, ErrIncompleteGeoData)
	})
}

func TestEvent_Row(t *testing.T) {
	event, _, err := Assemble(buildTestAccess(t), testAttributes())
	require.NoError(t, err)

	want := []string{
		"203.0.113.5",
		"2023-10-10T13:55:36Z",
		`{"q":["test"]}`,
		"200",
		"2.27 KiB",
		"",
		`{"browser":"` + event.Access.UserAgent.Browser + `","os":"` + event.Access.UserAgent.OS + `","device":"` + event.Access.UserAgent.Device + `"}`,
		"X", "Y", "Zland", "Z", "AS", "Asia", "1", "2",
	}
	row := event.Row()
	require.Len(t, row, len(Columns))
	if diff := cmp.Diff(want, row); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestEvent_Encode(t *testing.T) {
	event, _, err := Assemble(buildTestAccess(t), testAttributes())
	require.NoError(t, err)

	data, err := event.Encode()
	require.NoError(t, err)

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "203.0.113.5", decoded["access"]["ip"])
	assert.Equal(t, "2023-10-10T13:55:36Z", decoded["access"]["time"])
	assert.Nil(t, decoded["access"]["referer"])
	assert.InDelta(t, 200, decoded["access"]["status"], 0)
	assert.Equal(t, "X", decoded["city"]["name"])

	assert.Equal(t, []byte("203.0.113.5"), event.Key())
	assert.Equal(t, "1", event.Headers()["schema_version"])
	assert.Equal(t, "200", event.Headers()["status"])
}

func TestErrorKind(t *testing.T) {
	_, err := NewAccess(withField(3, "x"))
	assert.Equal(t, "status_format", ErrorKind(err))
	assert.Equal(t, "line_format", ErrorKind(ErrLineFormat))
	assert.Equal(t, "lookup", ErrorKind(&LookupError{IP: "1.2.3.4", Err: errors.New("boom")}))
	assert.Equal(t, "other", ErrorKind(errors.New("boom")))
}
