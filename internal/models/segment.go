package models

// SegmentKind tags a ContentSegment
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentImage
)

// ContentSegment is either a run of text or a reference to an image (1-based)
type ContentSegment struct {
	Kind       SegmentKind
	Text       string
	ImageIndex int
}

// TextSegment builds a text segment
func TextSegment(text string) ContentSegment {
	return ContentSegment{Kind: SegmentText, Text: text}
}

// ImageSegment builds an image reference segment
func ImageSegment(index int) ContentSegment {
	return ContentSegment{Kind: SegmentImage, ImageIndex: index}
}

func (s ContentSegment) IsImage() bool {
	return s.Kind == SegmentImage
}
