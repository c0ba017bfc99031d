package media

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Type is the coarse classification used to pick a generator.
type Type string

const (
	TypeOther      Type = "other"
	TypeImage      Type = "image"
	TypeVideo      Type = "video"
	TypeSVG        Type = "svg"
	TypePDF        Type = "pdf"
	TypeWord       Type = "word"
	TypeExcel      Type = "excel"
	TypePowerPoint Type = "powerpoint"
)

var (
	imageExtensions = []string{"png", "jpg", "jpeg", "gif"}
	videoExtensions = []string{"webm", "mov", "mp4"}
	excelExtensions = []string{"xls", "xlsx", "csv"}

	imageMimeTypes = []string{"image/jpeg", "image/gif", "image/png"}
	videoMimeTypes = []string{"video/webm", "video/mpeg", "video/mp4", "video/quicktime"}
)

// TypeIcon returns the font-awesome icon class for t.
func TypeIcon(t Type) string {
	if t == TypeOther {
		return "fa fa-file-o"
	}
	return "fa fa-file-" + string(t) + "-o"
}

// MimeProber detects the MIME type of a local file from its content.
type MimeProber interface {
	DetectMime(path string) (string, error)
}

// MimetypeProber sniffs file content with gabriel-vasile/mimetype.
type MimetypeProber struct{}

func (MimetypeProber) DetectMime(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	return mtype.String(), nil
}

// Classifier maps files to a Type, by extension first and by MIME second.
type Classifier struct {
	prober MimeProber
}

func NewClassifier(prober MimeProber) *Classifier {
	return &Classifier{prober: prober}
}

// Classify determines the type of fileName. mimeType may be empty when
// unknown. localPath is probed only when diskIsLocal is true.
func (c *Classifier) Classify(fileName, mimeType string, diskIsLocal bool, localPath string) Type {
	if t := TypeFromExtension(fileName); t != TypeOther {
		return t
	}

	if mimeType == "" && !diskIsLocal {
		return TypeOther
	}

	if diskIsLocal && c.prober != nil && localPath != "" {
		if probed, err := c.prober.DetectMime(localPath); err == nil {
			mimeType = probed
		}
	}

	return TypeFromMime(mimeType)
}

// TypeFromExtension classifies by the case-insensitive file extension.
func TypeFromExtension(fileName string) Type {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))

	switch {
	case slices.Contains(imageExtensions, ext):
		return TypeImage
	case slices.Contains(videoExtensions, ext):
		return TypeVideo
	case ext == "pdf":
		return TypePDF
	case ext == "svg":
		return TypeSVG
	case ext == "doc":
		return TypeWord
	case ext == "ppt":
		return TypePowerPoint
	case slices.Contains(excelExtensions, ext):
		return TypeExcel
	}
	return TypeOther
}

// TypeFromMime classifies by MIME type, ignoring parameters.
func TypeFromMime(mimeType string) Type {
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.ToLower(strings.TrimSpace(base))

	switch {
	case slices.Contains(imageMimeTypes, base):
		return TypeImage
	case slices.Contains(videoMimeTypes, base):
		return TypeVideo
	case base == "application/pdf":
		return TypePDF
	}
	return TypeOther
}
