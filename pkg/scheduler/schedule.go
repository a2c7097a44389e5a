// Package scheduler triggers workflow runs on cron schedules.
package scheduler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

// Schedule starts a run of TemplateID every time Cron fires.
type Schedule struct {
	ID         string         `yaml:"id"`
	Cron       string         `yaml:"cron"`
	TemplateID string         `yaml:"template_id"`
	ProjectID  string         `yaml:"project_id,omitempty"`
	StoryID    string         `yaml:"story_id,omitempty"`
	Input      map[string]any `yaml:"input,omitempty"`
	Disabled   bool           `yaml:"disabled,omitempty"`
}

type document struct {
	Schedules []Schedule `yaml:"schedules"`
}

func (s Schedule) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidSchedule)
	}

	if s.TemplateID == "" {
		return fmt.Errorf("%w: schedule %s: template_id is required", ErrInvalidSchedule, s.ID)
	}

	if s.Cron == "" {
		return fmt.Errorf("%w: schedule %s: cron is required", ErrInvalidSchedule, s.ID)
	}

	if _, err := cron.ParseStandard(s.Cron); err != nil {
		return fmt.Errorf("%w: schedule %s: %w", ErrInvalidSchedule, s.ID, err)
	}

	return nil
}

// Parse decodes a schedules document and validates every entry.
func Parse(data []byte) ([]Schedule, error) {
	var doc document

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	seen := make(map[string]bool, len(doc.Schedules))

	for _, schedule := range doc.Schedules {
		err = schedule.Validate()
		if err != nil {
			return nil, err
		}

		if seen[schedule.ID] {
			return nil, fmt.Errorf("%w: schedule %s is declared more than once", ErrInvalidSchedule, schedule.ID)
		}

		seen[schedule.ID] = true
	}

	return doc.Schedules, nil
}

// LoadFile reads the schedules document at path. An empty path or a missing
// file yields no schedules.
func LoadFile(path string) ([]Schedule, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied schedules path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return Parse(data)
}
