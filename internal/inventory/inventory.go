// Package inventory provides the user's skill inventory and knowledge cards.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/spigell/job-preprocessor/internal/model"
)

// Skills is read access to the current skill inventory.
type Skills interface {
	Skills(ctx context.Context) ([]model.Skill, error)
}

// Document is the on-disk inventory format.
type Document struct {
	Skills []model.Skill         `yaml:"skills" validate:"dive"`
	Cards  []model.KnowledgeCard `yaml:"cards" validate:"dive"`
}

// Validate checks required fields and that ids are unique per collection.
func (d *Document) Validate() error {
	if err := validator.New().Struct(d); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(d.Skills))
	for _, s := range d.Skills {
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("duplicate skill id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	seen = make(map[string]struct{}, len(d.Cards))
	for _, c := range d.Cards {
		if _, ok := seen[c.ID]; ok {
			return fmt.Errorf("duplicate card id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	return nil
}

// Parse decodes and validates an inventory document. Environment variables in
// data are expanded before decoding.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &doc); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("validate inventory: %w", err)
	}
	return &doc, nil
}

// LoadFile reads the inventory document at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	return Parse(data)
}

// File is a Skills source that re-reads its file on every call, so each job
// sees the inventory as it is when the job asks for it.
type File struct {
	Path string
}

func (f File) Skills(ctx context.Context) ([]model.Skill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(f.Path) == "" {
		return nil, errors.New("inventory file is not configured")
	}

	doc, err := LoadFile(f.Path)
	if err != nil {
		return nil, err
	}
	return doc.Skills, nil
}

// Static is a fixed in-memory skill inventory.
type Static []model.Skill

func (s Static) Skills(context.Context) ([]model.Skill, error) {
	return slices.Clone(s), nil
}
