// Package pathgen lays out media files relative to a storage root.
package pathgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pavel-fokin/media-library/internal/media"
)

const (
	KindDefault = "default"
	KindCustom  = "custom"
)

// Generator returns directories, relative to the storage root and ending in
// a slash, for the original file and for the conversions of a media item.
// Paths depend only on the media's identity so they survive metadata updates.
type Generator interface {
	Path(m *media.Media) string
	ConversionsPath(m *media.Media) string
}

// New returns the generator named by kind. The obfuscator is only used by
// the custom generator.
func New(kind string, ids Obfuscator) (Generator, error) {
	switch kind {
	case "", KindDefault:
		return Default{}, nil
	case KindCustom:
		if ids == nil {
			return nil, fmt.Errorf("custom path generator requires an id obfuscator")
		}
		return NewCustom(ids), nil
	default:
		return nil, fmt.Errorf("unsupported path generator: %s", kind)
	}
}

// Default partitions media by id into directories of at most a thousand
// entries: id 1234 is stored under 000/001/234/ and id 1234567890 under
// w12/001/234/567/890/.
type Default struct{}

func (Default) Path(m *media.Media) string {
	return partition(m.ID) + "/"
}

func (Default) ConversionsPath(m *media.Media) string {
	return partition(m.ID) + "/conversions/"
}

func partition(id int64) string {
	digits := strconv.FormatInt(id, 10)
	if id < 0 {
		digits = "n" + strconv.FormatInt(-id, 10)
	}

	width := max(9, (len(digits)+2)/3*3)
	digits = strings.Repeat("0", width-len(digits)) + digits

	groups := make([]string, 0, width/3+1)
	// Ids wider than nine digits live under a root per width, so no media
	// directory contains another.
	if width > 9 {
		groups = append(groups, "w"+strconv.Itoa(width))
	}
	for i := 0; i < width; i += 3 {
		groups = append(groups, digits[i:i+3])
	}
	return strings.Join(groups, "/")
}

// Custom stores media as <collection>/<obfuscated id>/ so ids are not
// exposed in URLs.
type Custom struct {
	ids Obfuscator
}

func NewCustom(ids Obfuscator) *Custom {
	return &Custom{ids: ids}
}

func (c *Custom) Path(m *media.Media) string {
	return m.CollectionName + "/" + c.ids.Encode(m.ID) + "/"
}

func (c *Custom) ConversionsPath(m *media.Media) string {
	return m.CollectionName + "/" + c.ids.Encode(m.ID) + "/c/"
}
