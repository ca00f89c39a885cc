package settings

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPropertiesJSONKeepsOrder(t *testing.T) {
	var props Properties
	require.NoError(t, json.Unmarshal([]byte(`{"z":1,"a":"x","m":null,"a":true}`), &props))
	require.Equal(t, []string{"z", "a", "m"}, props.Names())

	a, ok := props.Get("a")
	require.True(t, ok)
	require.True(t, Bool(true).Equal(a))

	data, err := json.Marshal(props)
	require.NoError(t, err)
	require.Equal(t, `{"z":1,"a":true,"m":null}`, string(data))
}

func TestPropertiesUnmarshalRejectsNonObject(t *testing.T) {
	var props Properties
	require.Error(t, json.Unmarshal([]byte(`[1,2]`), &props))

	require.NoError(t, json.Unmarshal([]byte(`null`), &props))
	require.Nil(t, props)
}

func TestPropertiesSetAndWithout(t *testing.T) {
	var props Properties
	props.Set("a", Int(1))
	props.Set("b", Int(2))
	props.Set("a", Int(3))
	require.Equal(t, 2, props.Len())

	got, _ := props.Get("a")
	require.True(t, Int(3).Equal(got))

	rest := props.Without("a", "missing")
	require.Equal(t, []string{"b"}, rest.Names())
	require.Equal(t, []string{"a", "b"}, props.Names())

	require.False(t, props.Equal(rest))
	require.True(t, props.Equal(props.Without()))
}

func TestKeys(t *testing.T) {
	plain := Keys{}
	require.Equal(t, "test", plain.Group("test"))
	require.Equal(t, "locks.test", plain.Locks("test"))

	prefixed := Keys{Prefix: "spatie"}
	require.Equal(t, "spatie.test", prefixed.Group("test"))
	require.Equal(t, "spatie.locks.test", prefixed.Locks("test"))
}
