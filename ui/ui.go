// Package ui defines the wire envelope shared by renderable components and
// protocol control messages. The model emits Components; the server emits
// both Components and control messages (clear, remove, error) over the same
// server-sent event channel. The envelope is a closed tagged union with the
// "type" field as discriminant.
package ui

import "encoding/json"

// Well-known component types emitted by the model.
const (
	TypeText        = "text"
	TypeHeading     = "heading"
	TypeButton      = "button"
	TypeImage       = "image"
	TypeBorderImage = "borderImage"
	TypeListItem    = "list-item"
	TypeDivider     = "divider"
)

// Control message types interpreted by the client before rendering.
const (
	TypeClear  = "clear"
	TypeRemove = "remove"
	TypeError  = "error"
)

// Recognized props keys.
const (
	PropContent  = "content"
	PropID       = "ID"
	PropColumns  = "columns"
	PropImageID  = "imageID"
	PropImageSrc = "imageSrc"
)

// imageTypes is the set of component types that require an auxiliary image
// asset before emission.
var imageTypes = map[string]bool{
	TypeImage:       true,
	TypeBorderImage: true,
	TypeListItem:    true,
}

// NeedsImage reports whether components of the given type require an image
// asset to be attached before dispatch.
func NeedsImage(typ string) bool { return imageTypes[typ] }

type (
	// Event is an element of the outbound stream: either a renderable
	// Component or one of the control messages. Implementations marshal to
	// the shared envelope shape.
	Event interface {
		// EventType returns the envelope discriminant.
		EventType() string
	}

	// Props is the open property mapping carried by components. Keys the
	// server recognizes are listed as Prop constants; everything else is
	// passed through to the renderer untouched.
	Props map[string]any

	// Component is a typed, renderable UI descriptor. Type selects the
	// renderer and drives side-effect needs; Props is an open mapping.
	Component struct {
		Type  string `json:"type"`
		Props Props  `json:"props,omitempty"`
	}

	// Clear instructs the client to discard all previously rendered
	// components.
	Clear struct{}

	// Remove instructs the client to delete the component with the given ID.
	Remove struct {
		ID string
	}

	// ErrorMessage is a terminal failure notice with a human-readable
	// message.
	ErrorMessage struct {
		Message string
	}
)

// EventType implements Event.
func (c Component) EventType() string { return c.Type }

// EventType implements Event.
func (Clear) EventType() string { return TypeClear }

// EventType implements Event.
func (Remove) EventType() string { return TypeRemove }

// EventType implements Event.
func (ErrorMessage) EventType() string { return TypeError }

// MarshalJSON renders the clear control envelope.
func (Clear) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"clear"}`), nil
}

// MarshalJSON renders the remove control envelope.
func (r Remove) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Props Props  `json:"props"`
	}{Type: TypeRemove, Props: Props{PropID: r.ID}})
}

// MarshalJSON renders the error control envelope.
func (e ErrorMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{Type: TypeError, Message: e.Message})
}

// Content returns the string content prop. Dispatch treats a missing or
// non-string content as the placeholder rather than failing.
func (c Component) Content() string {
	if c.Props == nil {
		return ""
	}
	if s, ok := c.Props[PropContent].(string); ok {
		return s
	}
	return ""
}

// Columns returns the layout width hint, defaulting to "6". The model
// sometimes emits the hint as a number; both encodings are accepted.
func (c Component) Columns() string {
	if c.Props == nil {
		return "6"
	}
	switch v := c.Props[PropColumns].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		switch v {
		case 2:
			return "2"
		case 3:
			return "3"
		case 6:
			return "6"
		}
	}
	return "6"
}

// SetImage attaches the generated image asset reference to the component.
func (c *Component) SetImage(id int, src string) {
	if c.Props == nil {
		c.Props = Props{}
	}
	c.Props[PropImageID] = id
	c.Props[PropImageSrc] = src
}

// DecodeComponents decodes raw JSON array elements into components. Elements
// with a null or missing type are rejected; a missing props mapping defaults
// to empty.
func DecodeComponents(elems []json.RawMessage) ([]Component, error) {
	comps := make([]Component, 0, len(elems))
	for _, raw := range elems {
		var c Component
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		if c.Type == "" {
			continue
		}
		if c.Props == nil {
			c.Props = Props{}
		}
		comps = append(comps, c)
	}
	return comps, nil
}

// NewText builds a text component with the given content, stable ID and
// column hint. Used for loading markers and user-facing error components.
func NewText(content, id, columns string) Component {
	return Component{
		Type: TypeText,
		Props: Props{
			PropContent: content,
			PropID:      id,
			PropColumns: columns,
		},
	}
}
