// Package content models message content as either plain text or a mixed
// list of typed segments, and normalises it for storage.
package content

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SegmentType discriminates mixed content segments.
type SegmentType string

const (
	SegmentText  SegmentType = "text"
	SegmentImage SegmentType = "image"
)

// Segment is one element of mixed content.
type Segment struct {
	Type     SegmentType `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL string      `json:"image_url,omitempty"`
	FileID   string      `json:"file_id,omitempty"`
	MimeType string      `json:"mime_type,omitempty"`
}

// Content is a tagged union: Text(string) or Mixed([]Segment).
type Content struct {
	mixed    bool
	text     string
	segments []Segment
}

// Text returns plain-text content.
func Text(s string) Content {
	return Content{text: s}
}

// Mixed returns structured content.
func Mixed(segments ...Segment) Content {
	return Content{mixed: true, segments: append([]Segment(nil), segments...)}
}

// TextSegment is a convenience constructor.
func TextSegment(s string) Segment {
	return Segment{Type: SegmentText, Text: s}
}

// ImageSegment is a convenience constructor.
func ImageSegment(url string) Segment {
	return Segment{Type: SegmentImage, ImageURL: url}
}

// IsMixed reports whether the content is structured.
func (c Content) IsMixed() bool { return c.mixed }

// Segments returns the structured segments, or a single text segment for plain content.
func (c Content) Segments() []Segment {
	if !c.mixed {
		if c.text == "" {
			return nil
		}
		return []Segment{TextSegment(c.text)}
	}
	return append([]Segment(nil), c.segments...)
}

// Flat returns the concatenation of all text, in order.
func (c Content) Flat() string {
	if !c.mixed {
		return c.text
	}
	var b strings.Builder
	for _, s := range c.segments {
		if s.Type == SegmentText {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

// Normalize produces the stored pair: the flattened text and, for mixed
// content, its canonical JSON encoding.
func (c Content) Normalize() (string, *string) {
	if !c.mixed {
		return c.text, nil
	}
	segments := c.segments
	if segments == nil {
		segments = []Segment{}
	}
	data, err := json.Marshal(segments)
	if err != nil {
		// Segment contains only strings; Marshal cannot fail.
		panic(err)
	}
	canonical := string(data)
	return c.Flat(), &canonical
}

// Parse rebuilds Content from stored columns. contentJSON is authoritative when
// it holds a valid segment list.
func Parse(flat string, contentJSON *string) Content {
	if contentJSON == nil || strings.TrimSpace(*contentJSON) == "" {
		return Text(flat)
	}
	var segments []Segment
	if err := json.Unmarshal([]byte(*contentJSON), &segments); err != nil {
		return Text(flat)
	}
	return Mixed(segments...)
}

// MarshalJSON renders a string for text content and a list for mixed content.
func (c Content) MarshalJSON() ([]byte, error) {
	if !c.mixed {
		return json.Marshal(c.text)
	}
	if c.segments == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.segments)
}

// UnmarshalJSON accepts either a JSON string or a list of segments.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*c = Text("")
		return nil
	case strings.HasPrefix(trimmed, "\""):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Text(s)
		return nil
	case strings.HasPrefix(trimmed, "["):
		var segments []Segment
		if err := json.Unmarshal(data, &segments); err != nil {
			return err
		}
		*c = Mixed(segments...)
		return nil
	default:
		return fmt.Errorf("content must be a string or a list of segments")
	}
}
