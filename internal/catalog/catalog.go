// Package catalog registers source PDFs as documents, deduplicated by the
// checksum of their bytes.
package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/observability"
	"github.com/spherical/slide-pipeline/internal/pdf"
	"github.com/spherical/slide-pipeline/internal/storage"
)

// Catalog registers PDFs.
type Catalog struct {
	store     *storage.Store
	validator *pdf.Validator
	counter   domain.PageCounter
	logger    *observability.Logger
}

// New creates a catalog. A nil counter uses the pdfcpu page counter.
func New(store *storage.Store, counter domain.PageCounter, logger *observability.Logger) *Catalog {
	if logger == nil {
		logger = observability.Nop()
	}
	validator := pdf.NewValidator(logger)
	if counter == nil {
		counter = pdf.NewPageCounter(validator)
	}
	return &Catalog{
		store:     store,
		validator: validator,
		counter:   counter,
		logger:    logger.WithOperation("register"),
	}
}

// Request describes one file to register.
type Request struct {
	Path           string
	Name           string
	Source         string
	CollectionCode string
	IssuerCode     string
	Year           int
	PublishAt      *time.Time
	Type           domain.DocumentType
	Extra          map[string]any
}

// Result is the stored document and whether this call created it.
type Result struct {
	Document *domain.Document `json:"document"`
	Created  bool             `json:"created"`
	Pages    int              `json:"pages"`
}

// Register validates the file, checksums it and stores it with status
// downloaded. Registering identical bytes again returns the existing row.
func (c *Catalog) Register(ctx context.Context, req Request) (*Result, error) {
	if err := c.validator.ValidatePDFPath(req.Path); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(req.Path)
	if err != nil {
		return nil, domain.IOError("resolve path", err)
	}

	checksum, err := pdf.ChecksumFile(abs)
	if err != nil {
		return nil, err
	}

	pages, err := c.counter.PageCount(abs)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(abs)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	extra := map[string]any{"page_count": pages}
	for k, v := range req.Extra {
		extra[k] = v
	}

	doc := &domain.Document{
		Checksum:       checksum,
		Name:           name,
		FilePath:       abs,
		CollectionCode: req.CollectionCode,
		IssuerCode:     req.IssuerCode,
		PublishAt:      req.PublishAt,
		Status:         domain.StatusDownloaded,
		Metadata: domain.DocumentMetadata{
			Source:     req.Source,
			Type:       req.Type,
			Year:       req.Year,
			IssuerCode: req.IssuerCode,
			Filename:   filename,
			Extra:      extra,
		},
	}
	if doc.Metadata.Type == domain.DocumentTypeUnknown {
		doc.Metadata.Type = domain.InferDocumentType(doc)
	}

	stored, created, err := c.store.Repositories().Documents.Register(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", filename, err)
	}

	logger := c.logger.WithDocument(stored.ID)
	var event *observability.LogEvent
	if created {
		event = logger.Info()
	} else {
		event = logger.Debug()
	}
	event.Str("checksum", checksum).
		Str("path", abs).
		Int("pages", pages).
		Bool("created", created).
		Msg("Document registered")

	return &Result{Document: stored, Created: created, Pages: pages}, nil
}

// Expand resolves paths into PDF files. Directories are walked recursively
// and their .pdf files returned in lexical order.
func Expand(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, domain.NotFoundError(fmt.Sprintf("path does not exist: %s", p), err)
			}
			return nil, domain.IOError(fmt.Sprintf("cannot access %s", p), err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}

		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, domain.IOError(fmt.Sprintf("walk %s", p), err)
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}
