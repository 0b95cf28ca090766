package domain

// Attachment is an uploaded file whose text content is handed to the prompt.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
}
