package illustrate

import (
	"fmt"
	"strings"

	"github.com/vampirenirmal/bookforge/internal/domain/book"
)

// Result holds one GeneratedImage per requested id, in request order.
type Result struct {
	Images []book.GeneratedImage `json:"images"`
	// Reference is the path of the first successful illustration, empty when
	// none succeeded.
	Reference string `json:"reference,omitempty"`
}

// Lookup returns the image for id. Ids that were never requested get a
// record carrying an error, so callers never see a zero value.
func (r *Result) Lookup(id string) book.GeneratedImage {
	for _, img := range r.Images {
		if img.PlaceholderID == id {
			return img
		}
	}
	return book.GeneratedImage{PlaceholderID: id, ErrorMessage: "no image requested for " + id}
}

// Paths maps each id to the file that should be placed for it. Failed
// requests without a synthesized image are absent.
func (r *Result) Paths() map[string]string {
	out := make(map[string]string, len(r.Images))
	for _, img := range r.Images {
		if img.ImagePath != "" {
			out[img.PlaceholderID] = img.ImagePath
		}
	}
	return out
}

// Failed counts requests that exhausted their attempts.
func (r *Result) Failed() int {
	n := 0
	for _, img := range r.Images {
		if !img.OK() {
			n++
		}
	}
	return n
}

// LogLines renders the audit log, one line per request.
func (r *Result) LogLines() []string {
	lines := make([]string, 0, len(r.Images))
	for _, img := range r.Images {
		errText := "None"
		if img.ErrorMessage != "" {
			errText = img.ErrorMessage
		}
		path := img.ImagePath
		if path == "" {
			path = "None"
		}
		lines = append(lines, fmt.Sprintf("Placeholder ID: %s, Path: %s, Error: %s", img.PlaceholderID, path, errText))
	}
	return lines
}

// Log joins LogLines into the image_log.txt body.
func (r *Result) Log() []byte {
	return []byte(strings.Join(r.LogLines(), "\n") + "\n")
}
