package media

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultCollection is used when a file is added without a collection name.
const DefaultCollection = "default"

// Subject is the entity a media item belongs to.
type Subject interface {
	SubjectType() string
	SubjectID() int64
	// Exists reports whether the subject has been persisted.
	Exists() bool
}

// SubjectRef is a plain polymorphic reference to a subject.
type SubjectRef struct {
	Type string
	ID   int64
}

func (s SubjectRef) SubjectType() string { return s.Type }
func (s SubjectRef) SubjectID() int64    { return s.ID }
func (s SubjectRef) Exists() bool        { return s.ID > 0 }

// Manipulations maps a conversion name to the steps that are applied
// before the conversion's own steps.
type Manipulations map[string][]*Map

// Clone returns a deep copy.
func (m Manipulations) Clone() Manipulations {
	c := make(Manipulations, len(m))
	for name, steps := range m {
		copied := make([]*Map, len(steps))
		for i, step := range steps {
			copied[i] = step.Clone()
		}
		c[name] = copied
	}
	return c
}

// Media represents one stored file attached to a subject
type Media struct {
	ID               int64         `json:"id"`
	UUID             string        `json:"uuid"`
	SubjectType      string        `json:"subject_type"`
	SubjectID        int64         `json:"subject_id"`
	CollectionName   string        `json:"collection_name"`
	Name             string        `json:"name"`
	FileName         string        `json:"file_name"`
	MimeType         string        `json:"mime_type"`
	Disk             string        `json:"disk"`
	Size             int64         `json:"size"`
	Manipulations    Manipulations `json:"manipulations"`
	CustomProperties *Map          `json:"custom_properties"`
	OrderColumn      int           `json:"order_column"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Extension returns the file name extension without the leading dot.
func (m *Media) Extension() string {
	return strings.TrimPrefix(filepath.Ext(m.FileName), ".")
}

func (m *Media) HumanReadableSize() string {
	if m.Size <= 0 {
		return humanize.IBytes(0)
	}
	return humanize.IBytes(uint64(m.Size))
}

func (m *Media) Subject() SubjectRef {
	return SubjectRef{Type: m.SubjectType, ID: m.SubjectID}
}

func (m *Media) HasCustomProperty(name string) bool {
	return m.CustomProperties.Has(name)
}

// GetCustomProperty returns the property or def when it is not set.
func (m *Media) GetCustomProperty(name string, def Value) Value {
	if v, ok := m.CustomProperties.Get(name); ok {
		return v
	}
	return def
}

func (m *Media) SetCustomProperty(name string, value Value) {
	if m.CustomProperties == nil {
		m.CustomProperties = NewMap()
	}
	m.CustomProperties.Set(name, value)
}

func (m *Media) RemoveCustomProperty(name string) {
	if m.CustomProperties == nil {
		return
	}
	m.CustomProperties.Delete(name)
}

// Repository defines the interface for media record persistence
type Repository interface {
	// Create stores a new record and assigns its ID
	Create(ctx context.Context, m *Media) error

	// Update overwrites an existing record
	Update(ctx context.Context, m *Media) error

	// FindByID retrieves a record by ID
	FindByID(ctx context.Context, id int64) (*Media, error)

	// ListForSubject retrieves the subject's media, optionally limited to one collection
	ListForSubject(ctx context.Context, subject Subject, collection string) ([]*Media, error)

	// Delete removes a record by ID
	Delete(ctx context.Context, id int64) error
}
