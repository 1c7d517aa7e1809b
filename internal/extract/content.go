package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/slide-pipeline/internal/domain"
)

// DefaultNoContent is the marker the vision service answers with for pages
// that carry nothing worth transcribing.
const DefaultNoContent = "NO_CONTENT"

// NormalizeContent trims text and maps the no-content marker to the empty
// string. The marker may be wrapped in quotes, backticks or a trailing dot.
func NormalizeContent(text, marker string) string {
	text = strings.TrimSpace(text)
	if marker == "" {
		return text
	}
	bare := strings.Trim(text, "`\"'. \n")
	if strings.EqualFold(bare, marker) {
		return ""
	}
	return text
}

// PageImagePath is where the image of one page is written.
func PageImagePath(root, documentID string, pageNo int) string {
	return filepath.Join(root, documentID, fmt.Sprintf("page-%03d.png", pageNo))
}

func writePageImage(root, documentID string, pageNo int, data []byte) (string, error) {
	path := PageImagePath(root, documentID, pageNo)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", domain.IOError("create image directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", domain.IOError(fmt.Sprintf("write page image %d", pageNo), err)
	}
	return path, nil
}
