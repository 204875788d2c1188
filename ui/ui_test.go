package ui

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestControlEnvelopes(t *testing.T) {
	data, err := json.Marshal(Clear{})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"clear"}`, string(data))

	data, err = json.Marshal(Remove{ID: "loading-yelp"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"remove","props":{"ID":"loading-yelp"}}`, string(data))

	data, err = json.Marshal(ErrorMessage{Message: "model overloaded"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"error","message":"model overloaded"}`, string(data))
}

func TestNeedsImage(t *testing.T) {
	require.True(t, NeedsImage(TypeImage))
	require.True(t, NeedsImage(TypeBorderImage))
	require.True(t, NeedsImage(TypeListItem))
	require.False(t, NeedsImage(TypeText))
	require.False(t, NeedsImage(TypeButton))
}

func TestDecodeComponents(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`{"type":"text","props":{"content":"Hi","columns":"3"}}`),
		json.RawMessage(`{"type":"divider"}`),
		json.RawMessage(`{"props":{"content":"typeless"}}`),
	}
	comps, err := DecodeComponents(raw)
	require.NoError(t, err)
	// The typeless element is dropped, not fatal.
	require.Len(t, comps, 2)
	require.Equal(t, "Hi", comps[0].Content())
	require.Equal(t, "3", comps[0].Columns())
	require.NotNil(t, comps[1].Props)
	require.Equal(t, "6", comps[1].Columns())
}

func TestColumnsNumericEncoding(t *testing.T) {
	var c Component
	require.NoError(t, json.Unmarshal([]byte(`{"type":"image","props":{"columns":3}}`), &c))
	require.Equal(t, "3", c.Columns())
}

func TestSetImage(t *testing.T) {
	c := Component{Type: TypeListItem}
	c.SetImage(1001, "https://cdn.example/img.png")
	require.Equal(t, 1001, c.Props[PropImageID])
	require.Equal(t, "https://cdn.example/img.png", c.Props[PropImageSrc])
}
