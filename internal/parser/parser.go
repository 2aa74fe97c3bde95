// Package parser decodes, validates and encodes YAML animation asset
// documents. A document is a mapping whose "kind" key selects the asset
// variant; the remaining keys are the variant's fields.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/segue/internal/apperr"
	"github.com/starford/segue/internal/models"
)

// Result holds a decoded asset plus the fields the index stores.
type Result struct {
	Asset       models.Asset
	Kind        models.Kind
	Name        string
	Description string
	Tags        []string
	Sections    []models.Section
	// References are other assets named by this one (blend space samples).
	References []string
	// Body is the searchable text: description, section and bone names.
	Body string
}

type header struct {
	Kind models.Kind `yaml:"kind"`
}

// Parse decodes and validates an asset document.
func Parse(data []byte) (*Result, error) {
	asset, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(asset); err != nil {
		return nil, err
	}
	return describe(asset), nil
}

// Decode reads the document without validating it.
func Decode(data []byte) (models.Asset, error) {
	var h header
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parser: decode header: %w: %w", apperr.ErrInvalid, err)
	}

	var asset models.Asset
	switch h.Kind {
	case models.KindSequence, "":
		asset = &models.Sequence{}
	case models.KindMontage:
		asset = &models.Montage{}
	case models.KindBlendSpace:
		asset = &models.BlendSpace{}
	default:
		return nil, fmt.Errorf("parser: unknown kind %q: %w", h.Kind, apperr.ErrInvalid)
	}
	if err := yaml.Unmarshal(data, asset); err != nil {
		return nil, fmt.Errorf("parser: decode %s: %w: %w", h.Kind, apperr.ErrInvalid, err)
	}
	return asset, nil
}

// Encode writes asset as a document with its kind first.
func Encode(asset models.Asset) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(asset); err != nil {
		return nil, fmt.Errorf("parser: encode: %w", err)
	}
	kind := []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: "kind"},
		{Kind: yaml.ScalarNode, Value: string(asset.Kind())},
	}
	doc.Content = append(kind, doc.Content...)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("parser: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("parser: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate checks the shared fields and the variant-specific ones.
func Validate(asset models.Asset) error {
	base := asset.Common()
	err := validation.ValidateStruct(base,
		validation.Field(&base.Name, validation.Required),
		validation.Field(&base.Length, validation.Min(0.0)),
		validation.Field(&base.Skeleton, validation.By(uniqueBones)),
	)
	if err == nil {
		switch a := asset.(type) {
		case *models.Montage:
			err = validation.ValidateStruct(a,
				validation.Field(&a.Sections,
					validation.Each(validation.By(sectionInRange(a.Length))),
					validation.By(sectionLinks),
				),
			)
		case *models.BlendSpace:
			err = validation.ValidateStruct(a,
				validation.Field(&a.Samples, validation.Each(validation.By(blendSample))),
			)
		}
	}
	if err != nil {
		return fmt.Errorf("parser: %w: %w", apperr.ErrInvalid, err)
	}
	return nil
}

func uniqueBones(value any) error {
	bones, _ := value.([]models.Bone)
	seen := make(map[string]struct{}, len(bones))
	for i, b := range bones {
		if b.Name == "" {
			return fmt.Errorf("bone %d has no name", i)
		}
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("duplicate bone %q", b.Name)
		}
		if b.Parent >= i {
			return fmt.Errorf("bone %q: parent must precede it", b.Name)
		}
		seen[b.Name] = struct{}{}
	}
	return nil
}

func sectionInRange(length float32) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(models.Section)
		return validation.ValidateStruct(&s,
			validation.Field(&s.Name, validation.Required),
			validation.Field(&s.StartTime, validation.Min(0.0), validation.Max(float64(length))),
		)
	}
}

func sectionLinks(value any) error {
	sections, _ := value.([]models.Section)
	names := make(map[string]struct{}, len(sections))
	for _, s := range sections {
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("duplicate section %q", s.Name)
		}
		names[s.Name] = struct{}{}
	}
	for _, s := range sections {
		if s.NextSectionName == "" {
			continue
		}
		if _, ok := names[s.NextSectionName]; !ok {
			return fmt.Errorf("section %q links to unknown section %q", s.Name, s.NextSectionName)
		}
	}
	return nil
}

func blendSample(value any) error {
	s, _ := value.(models.BlendSample)
	if strings.TrimSpace(s.Animation) == "" {
		return errors.New("sample has no animation")
	}
	return nil
}

func describe(asset models.Asset) *Result {
	base := asset.Common()
	res := &Result{
		Asset:       asset,
		Kind:        asset.Kind(),
		Name:        base.Name,
		Description: base.Description,
		Tags:        base.Tags,
	}

	words := []string{base.Description}
	switch a := asset.(type) {
	case *models.Montage:
		res.Sections = a.Sections
		for _, s := range a.Sections {
			words = append(words, s.Name)
		}
	case *models.BlendSpace:
		for _, s := range a.Samples {
			res.References = appendUnique(res.References, s.Animation)
		}
	}
	for _, b := range base.Skeleton {
		words = append(words, b.Name)
	}
	res.Body = strings.TrimSpace(strings.Join(words, " "))
	return res
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
