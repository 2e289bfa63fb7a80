package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

const PartTypeText = "text"

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// Content is either plain text or a list of typed parts, the two shapes chat
// clients send. Text projects either one to plain text.
type Content struct {
	text  string
	parts []ContentPart
}

func PlainText(s string) Content { return Content{text: s} }

func StructuredParts(parts ...ContentPart) Content {
	if parts == nil {
		parts = []ContentPart{}
	}
	return Content{parts: parts}
}

func (c Content) IsStructured() bool { return c.parts != nil }

func (c Content) Parts() []ContentPart { return c.parts }

// Text returns the plain-text projection. Text parts are joined with a newline;
// non-text parts are dropped.
func (c Content) Text() string {
	if !c.IsStructured() {
		return c.text
	}
	texts := make([]string, 0, len(c.parts))
	for _, p := range c.parts {
		if p.Type != PartTypeText {
			continue
		}
		if t := strings.TrimSpace(p.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n")
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsStructured() {
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

func (c *Content) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*c = Content{}
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = PlainText(s)
		return nil
	case b[0] == '[':
		var parts []ContentPart
		if err := json.Unmarshal(b, &parts); err != nil {
			return err
		}
		*c = StructuredParts(parts...)
		return nil
	}
	return errors.New("content must be a string or an array of parts")
}
