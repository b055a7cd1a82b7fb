package verification

// InputKind tags an Input
type InputKind int

const (
	InputImage InputKind = iota + 1
	InputText
)

// Input is the subject of one verification cycle: image bytes or typed text
type Input struct {
	Kind     InputKind
	Data     []byte
	MimeType string
	Size     int64
	Text     string
}

// ImageInput wraps uploaded or captured image bytes. size is the declared size; the
// larger of it and len(data) is used for validation.
func ImageInput(data []byte, mimeType string, size int64) Input {
	if n := int64(len(data)); n > size {
		size = n
	}
	return Input{Kind: InputImage, Data: data, MimeType: mimeType, Size: size}
}

// TextInput wraps typed or already-recognized text
func TextInput(text string) Input {
	return Input{Kind: InputText, Text: text}
}
