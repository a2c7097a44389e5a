// Package templates reads workflow template documents (YAML or JSON) and
// imports them into the template store.
package templates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/graph"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

var ErrInvalidDocument = errors.New("invalid template document")

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

// SchemaError lists the schema violations of a template document.
type SchemaError struct {
	Errors []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidDocument.Error(), strings.Join(e.Errors, "; "))
}

func (e *SchemaError) Unwrap() error { return ErrInvalidDocument }

// File is a template parsed from disk.
type File struct {
	Template *models.WorkflowTemplate
	Path     string
}

// Parse decodes a YAML or JSON template document, checks it against the
// document schema and then validates its graph.
func Parse(data []byte) (*models.WorkflowTemplate, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: document is empty", ErrInvalidDocument)
	}

	var document any

	err := yaml.Unmarshal(data, &document)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	err = validateDocument(document)
	if err != nil {
		return nil, err
	}

	var template models.WorkflowTemplate

	err = yaml.Unmarshal(data, &template)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	err = graph.Validate(&template)
	if err != nil {
		return nil, err
	}

	return &template, nil
}

func validateDocument(document any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(document))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		violations = append(violations, resultErr.String())
	}

	return &SchemaError{Errors: violations}
}

// LoadFile reads and parses one template document.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied template path
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}

	template, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}

	return File{Template: template, Path: filepath.Clean(path)}, nil
}

// LoadDir parses every *.yaml, *.yml and *.json document in dir, sorted by
// file name. A missing directory holds no templates.
func LoadDir(dir string) ([]File, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read %s: %w", trimmed, err)
	}

	var files []File

	for _, entry := range entries {
		if entry.IsDir() || !isDocument(entry.Name()) {
			continue
		}

		file, err := LoadFile(filepath.Join(trimmed, entry.Name()))
		if err != nil {
			return nil, err
		}

		files = append(files, file)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return files, nil
}

// Import loads every document in dir and saves it, replacing stored templates with the same id.
func Import(ctx context.Context, logger *slog.Logger, repo persistence.TemplateRepository, dir string) (int, error) {
	files, err := LoadDir(dir)
	if err != nil {
		return 0, err
	}

	for _, file := range files {
		err = repo.SaveTemplate(ctx, file.Template)
		if err != nil {
			return 0, fmt.Errorf("import %s: %w", file.Path, err)
		}

		logger.InfoContext(ctx, "template imported", "template_id", file.Template.ID, "path", file.Path)
	}

	return len(files), nil
}

func isDocument(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}
