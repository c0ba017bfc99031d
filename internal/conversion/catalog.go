package conversion

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/pavel-fokin/media-library/internal/media"
)

// Catalog holds the conversions declared per subject type.
type Catalog struct {
	declared map[string][]*Conversion
}

type catalogFile struct {
	Subjects map[string]struct {
		Conversions []conversionSpec `yaml:"conversions"`
	} `yaml:"subjects"`
}

type conversionSpec struct {
	Name          string      `yaml:"name"`
	Queued        *bool       `yaml:"queued"`
	Collections   []string    `yaml:"collections"`
	Manipulations []yaml.Node `yaml:"manipulations"`
}

func NewCatalog() *Catalog {
	return &Catalog{declared: map[string][]*Conversion{}}
}

// LoadCatalog reads declarations from a YAML file. An empty path yields an
// empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversions file: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse conversions: %w", err)
	}

	c := NewCatalog()
	for subjectType, subject := range file.Subjects {
		for _, spec := range subject.Conversions {
			if spec.Name == "" {
				return nil, fmt.Errorf("subject %q: conversion without name", subjectType)
			}
			conv := New(spec.Name).PerformOnCollections(spec.Collections...)
			if spec.Queued != nil && !*spec.Queued {
				conv.NonQueued()
			}
			for i := range spec.Manipulations {
				step, err := mapFromNode(&spec.Manipulations[i])
				if err != nil {
					return nil, fmt.Errorf("subject %q conversion %q: %w", subjectType, spec.Name, err)
				}
				conv.AddManipulation(step)
			}
			c.Register(subjectType, conv)
		}
	}
	return c, nil
}

// Register adds conversions to a subject type's declarations.
func (c *Catalog) Register(subjectType string, conversions ...*Conversion) {
	c.declared[subjectType] = append(c.declared[subjectType], conversions...)
}

// Subject returns a reference to a subject. Types with declarations get a
// subject that implements Declarer.
func (c *Catalog) Subject(subjectType string, id int64) media.Subject {
	ref := media.SubjectRef{Type: subjectType, ID: id}
	conversions, ok := c.declared[subjectType]
	if !ok {
		return ref
	}
	return declaringSubject{SubjectRef: ref, conversions: conversions}
}

type declaringSubject struct {
	media.SubjectRef
	conversions []*Conversion
}

func (s declaringSubject) RegisterConversions() []*Conversion {
	return s.conversions
}

func mapFromNode(node *yaml.Node) (*media.Map, error) {
	v, err := valueFromNode(node)
	if err != nil {
		return nil, err
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, fmt.Errorf("manipulation must be a mapping, line %d", node.Line)
	}
	return m, nil
}

func valueFromNode(node *yaml.Node) (media.Value, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return media.Null(), nil
		}
		return valueFromNode(node.Content[0])
	case yaml.AliasNode:
		return valueFromNode(node.Alias)
	case yaml.MappingNode:
		m := media.NewMap()
		for i := 0; i+1 < len(node.Content); i += 2 {
			v, err := valueFromNode(node.Content[i+1])
			if err != nil {
				return media.Value{}, err
			}
			m.Set(node.Content[i].Value, v)
		}
		return media.Nested(m), nil
	case yaml.SequenceNode:
		list := make([]media.Value, 0, len(node.Content))
		for _, item := range node.Content {
			v, err := valueFromNode(item)
			if err != nil {
				return media.Value{}, err
			}
			list = append(list, v)
		}
		return media.List(list...), nil
	case yaml.ScalarNode:
		switch node.ShortTag() {
		case "!!null":
			return media.Null(), nil
		case "!!bool":
			b, err := strconv.ParseBool(node.Value)
			if err != nil {
				return media.String(node.Value), nil
			}
			return media.Bool(b), nil
		case "!!int":
			var i int64
			if err := node.Decode(&i); err != nil {
				return media.Value{}, fmt.Errorf("invalid number %q at line %d", node.Value, node.Line)
			}
			return media.Int64(i), nil
		case "!!float":
			var n float64
			if err := node.Decode(&n); err != nil {
				return media.Value{}, fmt.Errorf("invalid number %q at line %d", node.Value, node.Line)
			}
			return media.Number(n), nil
		}
		return media.String(node.Value), nil
	}
	return media.Value{}, fmt.Errorf("unsupported yaml node at line %d", node.Line)
}
