// Package urlgen resolves the storage path and public URL of a media file
// or one of its conversions for each kind of storage backend.
package urlgen

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pavel-fokin/media-library/internal/conversion"
	"github.com/pavel-fokin/media-library/internal/media"
	"github.com/pavel-fokin/media-library/internal/pathgen"
)

// Storage drivers a disk can be backed by.
const (
	DriverLocal = "local"
	DriverS3    = "s3"
	DriverMinio = "minio"
)

var ErrUnknownDisk = errors.New("unknown disk")

// Generator resolves the location of one media item. Without a conversion
// it targets the original file.
type Generator interface {
	SetConversion(c *conversion.Conversion)
	// PathRelativeToRoot is the same for every backend.
	PathRelativeToRoot() string
	Path() string
	URL() string
}

type base struct {
	media      *media.Media
	conversion *conversion.Conversion
	paths      pathgen.Generator
}

func (b *base) SetConversion(c *conversion.Conversion) {
	b.conversion = c
}

func (b *base) PathRelativeToRoot() string {
	if b.conversion == nil {
		return b.paths.Path(b.media) + b.media.FileName
	}
	return b.paths.ConversionsPath(b.media) + b.conversion.FileName(b.media.Extension())
}

// escapedPath is the relative path with every segment URL-escaped.
func (b *base) escapedPath() string {
	segments := strings.Split(b.PathRelativeToRoot(), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func join(prefix, rel string) string {
	return strings.TrimRight(prefix, "/") + "/" + rel
}

// Config holds what the generators need to compose absolute locations.
type Config struct {
	// Drivers maps disk names to one of the Driver constants.
	Drivers map[string]string
	Local   LocalConfig
	S3      S3Config
	Minio   MinioConfig
}

type LocalConfig struct {
	Root string
	URL  string
}

type S3Config struct {
	Domain string
}

type MinioConfig struct {
	Domain string
	// MultipleDisk inserts the media's disk between domain and path.
	MultipleDisk bool
}

// Factory creates the generator matching a media item's disk.
type Factory struct {
	cfg   Config
	paths pathgen.Generator
}

func NewFactory(cfg Config, paths pathgen.Generator) *Factory {
	return &Factory{cfg: cfg, paths: paths}
}

func (f *Factory) Driver(disk string) (string, error) {
	driver, ok := f.cfg.Drivers[disk]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDisk, disk)
	}
	return driver, nil
}

func (f *Factory) IsLocal(disk string) bool {
	driver, err := f.Driver(disk)
	return err == nil && driver == DriverLocal
}

func (f *Factory) ForMedia(m *media.Media) (Generator, error) {
	driver, err := f.Driver(m.Disk)
	if err != nil {
		return nil, err
	}

	b := base{media: m, paths: f.paths}
	switch driver {
	case DriverLocal:
		return &Local{base: b, cfg: f.cfg.Local}, nil
	case DriverS3:
		return &S3{base: b, cfg: f.cfg.S3}, nil
	case DriverMinio:
		return &Minio{base: b, cfg: f.cfg.Minio}, nil
	}
	return nil, fmt.Errorf("%w: disk %q has unsupported driver %q", ErrUnknownDisk, m.Disk, driver)
}
