package conversion

import (
	"errors"
	"fmt"

	"github.com/pavel-fokin/media-library/internal/media"
)

// ErrUnknownConversion is returned when a conversion is looked up by a name
// that is not registered for the media item.
var ErrUnknownConversion = errors.New("unknown conversion")

// Declarer is implemented by subjects that declare conversions for their media.
type Declarer interface {
	RegisterConversions() []*Conversion
}

// Registry is a point-in-time snapshot of the conversions of one media item.
type Registry struct {
	conversions []*Conversion
	extension   string
}

// Build merges the subject's declared conversions with the media's stored
// manipulations. Stored steps are prepended to the conversion of the same
// name; stored entries without a matching conversion are ignored.
func Build(m *media.Media, subject media.Subject) *Registry {
	r := &Registry{extension: m.Extension()}

	if d, ok := subject.(Declarer); ok {
		for _, c := range d.RegisterConversions() {
			r.conversions = append(r.conversions, c.Clone())
		}
	}

	for name, steps := range m.Manipulations {
		c := r.find(name)
		if c == nil {
			continue
		}
		for i := len(steps) - 1; i >= 0; i-- {
			c.AddAsFirstManipulation(steps[i].Clone())
		}
	}

	return r
}

// find returns the first conversion called name.
func (r *Registry) find(name string) *Conversion {
	for _, c := range r.conversions {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func (r *Registry) Len() int {
	return len(r.conversions)
}

func (r *Registry) All() []*Conversion {
	return append([]*Conversion(nil), r.conversions...)
}

// ByName returns the first conversion called name.
func (r *Registry) ByName(name string) (*Conversion, error) {
	if c := r.find(name); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownConversion, name)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.conversions))
	for _, c := range r.conversions {
		names = append(names, c.Name())
	}
	return names
}

// ForCollection returns the conversions that apply to collection. An empty
// collection name returns every conversion.
func (r *Registry) ForCollection(collection string) []*Conversion {
	if collection == "" {
		return r.All()
	}
	return r.filter(collection, func(*Conversion) bool { return true })
}

func (r *Registry) Queued(collection string) []*Conversion {
	return r.filter(collection, (*Conversion).ShouldBeQueued)
}

func (r *Registry) NonQueued(collection string) []*Conversion {
	return r.filter(collection, func(c *Conversion) bool { return !c.ShouldBeQueued() })
}

// FileNames returns "<name>.<extension>" for each conversion of collection.
func (r *Registry) FileNames(collection string) []string {
	conversions := r.ForCollection(collection)
	files := make([]string, 0, len(conversions))
	for _, c := range conversions {
		files = append(files, c.FileName(r.extension))
	}
	return files
}

func (r *Registry) filter(collection string, keep func(*Conversion) bool) []*Conversion {
	var out []*Conversion
	for _, c := range r.conversions {
		if collection != "" && !c.ShouldBePerformedOn(collection) {
			continue
		}
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
