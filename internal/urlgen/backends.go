package urlgen

import (
	"path/filepath"
)

// Local resolves files stored under a directory served at a base URL.
type Local struct {
	base
	cfg LocalConfig
}

// Path is the absolute path on the local filesystem.
func (g *Local) Path() string {
	return filepath.Join(g.cfg.Root, filepath.FromSlash(g.PathRelativeToRoot()))
}

func (g *Local) URL() string {
	return join(g.cfg.URL, g.escapedPath())
}

// S3 resolves objects in an S3 bucket.
type S3 struct {
	base
	cfg S3Config
}

// Path is the object key.
func (g *S3) Path() string {
	return g.PathRelativeToRoot()
}

func (g *S3) URL() string {
	return join(g.cfg.Domain, g.escapedPath())
}

// Minio resolves objects on a MinIO server, optionally with one bucket per disk.
type Minio struct {
	base
	cfg MinioConfig
}

// Path is the object key.
func (g *Minio) Path() string {
	return g.PathRelativeToRoot()
}

func (g *Minio) URL() string {
	if g.cfg.MultipleDisk {
		return join(join(g.cfg.Domain, g.media.Disk), g.escapedPath())
	}
	return join(g.cfg.Domain, g.escapedPath())
}
