// Package conversion describes derived artifacts of a media file and
// resolves the set that applies to one media item.
package conversion

import (
	"fmt"
	"slices"

	"github.com/pavel-fokin/media-library/internal/media"
)

// Manipulation parameter keys understood by the generators.
const (
	ParamWidth       = "w"
	ParamHeight      = "h"
	ParamFit         = "fit"
	ParamFormat      = "fm"
	ParamQuality     = "q"
	ParamBlur        = "blur"
	ParamSharpen     = "sharp"
	ParamFilter      = "filt"
	ParamOrientation = "or"
	ParamCrop        = "crop"
	ParamBrightness  = "bri"
	ParamContrast    = "con"
	ParamGamma       = "gam"
)

// Conversion is a named recipe for one derived file.
type Conversion struct {
	name          string
	manipulations []*media.Map
	collections   []string
	queued        bool
}

// New creates a conversion. Conversions are queued unless NonQueued is called.
func New(name string) *Conversion {
	return &Conversion{name: name, queued: true}
}

func (c *Conversion) Name() string {
	return c.name
}

// Manipulations returns the steps in the order they are applied.
func (c *Conversion) Manipulations() []*media.Map {
	return slices.Clone(c.manipulations)
}

func (c *Conversion) SetManipulations(steps ...*media.Map) *Conversion {
	c.manipulations = slices.Clone(steps)
	return c
}

func (c *Conversion) AddManipulation(step *media.Map) *Conversion {
	c.manipulations = append(c.manipulations, step)
	return c
}

func (c *Conversion) AddAsFirstManipulation(step *media.Map) *Conversion {
	c.manipulations = slices.Insert(c.manipulations, 0, step)
	return c
}

func (c *Conversion) Width(w int) *Conversion        { return c.set(ParamWidth, media.Int(w)) }
func (c *Conversion) Height(h int) *Conversion       { return c.set(ParamHeight, media.Int(h)) }
func (c *Conversion) Fit(mode string) *Conversion    { return c.set(ParamFit, media.String(mode)) }
func (c *Conversion) Format(ext string) *Conversion  { return c.set(ParamFormat, media.String(ext)) }
func (c *Conversion) Quality(q int) *Conversion      { return c.set(ParamQuality, media.Int(q)) }
func (c *Conversion) Blur(amount int) *Conversion    { return c.set(ParamBlur, media.Int(amount)) }
func (c *Conversion) Sharpen(amount int) *Conversion { return c.set(ParamSharpen, media.Int(amount)) }
func (c *Conversion) Greyscale() *Conversion         { return c.set(ParamFilter, media.String("greyscale")) }
func (c *Conversion) Orientation(deg int) *Conversion {
	return c.set(ParamOrientation, media.Int(deg))
}

// Crop cuts a w x h region at x,y out of the image.
func (c *Conversion) Crop(w, h, x, y int) *Conversion {
	return c.set(ParamCrop, media.String(fmt.Sprintf("%d,%d,%d,%d", w, h, x, y)))
}

// set writes a parameter into the last step, creating one if needed.
func (c *Conversion) set(key string, value media.Value) *Conversion {
	if len(c.manipulations) == 0 {
		c.manipulations = append(c.manipulations, media.NewMap())
	}
	c.manipulations[len(c.manipulations)-1].Set(key, value)
	return c
}

// PerformOnCollections restricts the conversion to the given collections.
func (c *Conversion) PerformOnCollections(names ...string) *Conversion {
	c.collections = slices.Clone(names)
	return c
}

func (c *Conversion) Collections() []string {
	return slices.Clone(c.collections)
}

// ShouldBePerformedOn reports whether the conversion applies to collection.
// An empty scope or "*" applies to every collection.
func (c *Conversion) ShouldBePerformedOn(collection string) bool {
	if len(c.collections) == 0 {
		return true
	}
	return slices.Contains(c.collections, "*") || slices.Contains(c.collections, collection)
}

func (c *Conversion) Queued() *Conversion {
	c.queued = true
	return c
}

func (c *Conversion) NonQueued() *Conversion {
	c.queued = false
	return c
}

func (c *Conversion) ShouldBeQueued() bool {
	return c.queued
}

// ResultExtension returns the format requested by the last step that sets
// one, or original when none does.
func (c *Conversion) ResultExtension(original string) string {
	ext := original
	for _, step := range c.manipulations {
		if v, ok := step.Get(ParamFormat); ok {
			if s, ok := v.AsString(); ok && s != "" {
				ext = s
			}
		}
	}
	return ext
}

// FileName is the name of the derived file, e.g. "thumb.jpg".
func (c *Conversion) FileName(originalExtension string) string {
	return c.name + "." + c.ResultExtension(originalExtension)
}

// Clone returns a deep copy so that registries never share steps with the
// declarations they were built from.
func (c *Conversion) Clone() *Conversion {
	steps := make([]*media.Map, len(c.manipulations))
	for i, step := range c.manipulations {
		steps[i] = step.Clone()
	}
	return &Conversion{
		name:          c.name,
		manipulations: steps,
		collections:   slices.Clone(c.collections),
		queued:        c.queued,
	}
}
