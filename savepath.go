package tethercam

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// FormatHint is the coarse format class of a captured file, derived from its
// extension. It keys destination-directory organization.
type FormatHint string

const (
	FormatRAW   FormatHint = "RAW"
	FormatJPEG  FormatHint = "JPEG"
	FormatTIFF  FormatHint = "TIFF"
	FormatOther FormatHint = "OTHER"
)

var extensionHints = map[string]FormatHint{
	"jpg": FormatJPEG, "jpeg": FormatJPEG, "jpe": FormatJPEG,
	"raw": FormatRAW, "nef": FormatRAW, "cr2": FormatRAW, "cr3": FormatRAW,
	"arw": FormatRAW, "orf": FormatRAW, "rw2": FormatRAW, "pef": FormatRAW,
	"dng": FormatRAW,
	"tif": FormatTIFF, "tiff": FormatTIFF,
}

// HintForExtension classifies a file extension (with or without the leading
// dot) into a FormatHint.
func HintForExtension(ext string) FormatHint {
	normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if hint, ok := extensionHints[normalized]; ok {
		return hint
	}
	return FormatOther
}

// PathResolver picks the destination directory for a format class. The
// file-naming policy itself lives in Destination.
type PathResolver interface {
	SavePath(hint FormatHint) (string, error)
}

// DateOrganizer is the default PathResolver: {base}/{YYYY-MM-DD}, plus a
// format-category subdirectory when ByFormat is set.
type DateOrganizer struct {
	Base     string
	ByFormat bool

	clock func() time.Time
}

// NewDateOrganizer builds an organizer rooted at base.
func NewDateOrganizer(base string, byFormat bool) *DateOrganizer {
	return &DateOrganizer{Base: base, ByFormat: byFormat}
}

// SavePath returns (and creates) the directory for hint.
func (o *DateOrganizer) SavePath(hint FormatHint) (string, error) {
	now := time.Now()
	if o.clock != nil {
		now = o.clock()
	}
	dir := filepath.Join(o.Base, now.Format("2006-01-02"))
	if o.ByFormat {
		dir = filepath.Join(dir, string(hint))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create save directory %s failed", dir)
	}
	return dir, nil
}

// Destination computes the local path for a remote file: the resolver's
// directory for the file's format, then `{base}_{HHMMSS}{ext}` to keep
// repeated camera names from colliding.
func Destination(resolver PathResolver, remotePath string, now time.Time) (string, error) {
	name := filepath.Base(remotePath)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	dir, err := resolver.SavePath(HintForExtension(ext))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, base+"_"+now.Format("150405")+ext), nil
}
