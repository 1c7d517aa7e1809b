package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Document is a registered source PDF.
type Document struct {
	ID             string           `json:"id" db:"id"`
	Checksum       string           `json:"checksum" db:"checksum"`
	Name           string           `json:"name" db:"name"`
	FilePath       string           `json:"file_path" db:"file_path"`
	CollectionCode string           `json:"collection_code,omitempty" db:"collection_code"`
	IssuerCode     string           `json:"issuer_code,omitempty" db:"issuer_code"`
	PublishAt      *time.Time       `json:"publish_at,omitempty" db:"publish_at"`
	Status         Status           `json:"status" db:"status"`
	Metadata       DocumentMetadata `json:"metadata" db:"metadata"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// Slide is the extracted artifact of one physical page.
type Slide struct {
	ID               string        `json:"id" db:"id"`
	DocumentID       string        `json:"document_id" db:"document_id"`
	ContentText      *string       `json:"content_text,omitempty" db:"content_text"`
	Embedding        []float32     `json:"-" db:"content_text_vector"`
	ImagePath        string        `json:"image_path" db:"image_path"`
	Extractor        string        `json:"extractor" db:"extractor"`
	Model            string        `json:"model" db:"model"`
	Metadata         SlideMetadata `json:"metadata" db:"metadata"`
	IngestionStartAt *time.Time    `json:"ingestion_start_at,omitempty" db:"ingestion_start_at"`
	IngestionEndAt   *time.Time    `json:"ingestion_end_at,omitempty" db:"ingestion_end_at"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// Text returns the slide content or the empty string when unset.
func (s *Slide) Text() string {
	if s.ContentText == nil {
		return ""
	}
	return *s.ContentText
}

// DocumentMetadata holds the known document attributes plus an open map for
// anything else the registering source attaches.
type DocumentMetadata struct {
	Source     string         `json:"source,omitempty"`
	Type       DocumentType   `json:"type,omitempty"`
	Year       int            `json:"year,omitempty"`
	IssuerCode string         `json:"issuer_code,omitempty"`
	Filename   string         `json:"filename,omitempty"`
	Extra      map[string]any `json:"-"`
}

var documentMetadataKeys = []string{"source", "type", "year", "issuer_code", "filename"}

// MarshalJSON flattens Extra next to the known fields.
func (m DocumentMetadata) MarshalJSON() ([]byte, error) {
	type known DocumentMetadata
	return marshalWithExtra(known(m), m.Extra, documentMetadataKeys)
}

// UnmarshalJSON collects unknown keys into Extra.
func (m *DocumentMetadata) UnmarshalJSON(data []byte) error {
	type known DocumentMetadata
	var k known
	extra, err := unmarshalWithExtra(data, &k, documentMetadataKeys)
	if err != nil {
		return err
	}
	*m = DocumentMetadata(k)
	m.Extra = extra
	return nil
}

// SlideMetadata is the per-page metadata consumed by downstream tooling.
type SlideMetadata struct {
	SlideNo    int            `json:"slide_no"`
	TotalPages int            `json:"total_pages"`
	FilePath   string         `json:"file_path,omitempty"`
	ImageMIME  string         `json:"image_mime,omitempty"`
	DPI        int            `json:"dpi,omitempty"`
	Zoom       float64        `json:"zoom,omitempty"`
	Extractor  string         `json:"extractor,omitempty"`
	Model      string         `json:"model,omitempty"`
	Note       string         `json:"note,omitempty"`
	Extra      map[string]any `json:"-"`
}

var slideMetadataKeys = []string{
	"slide_no", "total_pages", "file_path", "image_mime", "dpi", "zoom", "extractor", "model", "note",
}

// MarshalJSON flattens Extra next to the known fields.
func (m SlideMetadata) MarshalJSON() ([]byte, error) {
	type known SlideMetadata
	return marshalWithExtra(known(m), m.Extra, slideMetadataKeys)
}

// UnmarshalJSON collects unknown keys into Extra.
func (m *SlideMetadata) UnmarshalJSON(data []byte) error {
	type known SlideMetadata
	var k known
	extra, err := unmarshalWithExtra(data, &k, slideMetadataKeys)
	if err != nil {
		return err
	}
	*m = SlideMetadata(k)
	m.Extra = extra
	return nil
}

func marshalWithExtra(known any, extra map[string]any, reserved []string) ([]byte, error) {
	base, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return base, nil
	}
	merged := make(map[string]any, len(extra)+len(reserved))
	for k, v := range extra {
		merged[k] = v
	}
	// known fields win over extra keys with the same name
	var fields map[string]any
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func unmarshalWithExtra(data []byte, known any, reserved []string) (map[string]any, error) {
	if err := json.Unmarshal(data, known); err != nil {
		return nil, err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range reserved {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// DocumentType selects the extraction instruction for a document.
type DocumentType string

const (
	DocumentTypePubex           DocumentType = "pubex"
	DocumentTypeFinancialReport DocumentType = "financial_report"
	DocumentTypeUnknown         DocumentType = ""
)

// InferDocumentType returns the declared metadata type when recognized,
// otherwise it guesses from the document name and filename.
func InferDocumentType(doc *Document) DocumentType {
	switch t := DocumentType(strings.ToLower(strings.TrimSpace(string(doc.Metadata.Type)))); t {
	case DocumentTypePubex, DocumentTypeFinancialReport:
		return t
	}

	haystack := strings.ToLower(doc.Name + " " + doc.Metadata.Filename)
	switch {
	case strings.Contains(haystack, "pubex"), strings.Contains(haystack, "public expose"):
		return DocumentTypePubex
	case strings.Contains(haystack, "laporan keuangan"),
		strings.Contains(haystack, "financial"),
		strings.Contains(haystack, "annual report"):
		return DocumentTypeFinancialReport
	}
	return DocumentTypeUnknown
}

// OverwriteMode governs how prior slides are reconciled before an
// extraction pass inserts new ones.
type OverwriteMode string

const (
	OverwriteDocument OverwriteMode = "document"
	OverwriteModel    OverwriteMode = "model"
	OverwriteNone     OverwriteMode = "none"
)

// ParseOverwriteMode validates a mode name. The empty string selects the
// document mode.
func ParseOverwriteMode(s string) (OverwriteMode, error) {
	switch OverwriteMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", OverwriteDocument:
		return OverwriteDocument, nil
	case OverwriteModel:
		return OverwriteModel, nil
	case OverwriteNone:
		return OverwriteNone, nil
	}
	return "", ConfigError(fmt.Sprintf("unrecognized overwrite mode %q (want document, model or none)", s), nil)
}

// Extractor identities recorded on every slide.
const (
	ExtractorVLM       = "vlm"
	ExtractorConverter = "converter"
)
