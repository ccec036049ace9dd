package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// FilterSettings are the global color filters applied to the source video
// during preview and export.
type FilterSettings struct {
	Brightness float64 `json:"brightness"` // 0..2, 1 = neutral
	Contrast   float64 `json:"contrast"`   // 0..2, 1 = neutral
	Saturation float64 `json:"saturation"` // 0..2, 1 = neutral
	Grayscale  bool    `json:"grayscale"`
}

// DefaultFilters returns the neutral filter set.
func DefaultFilters() FilterSettings {
	return FilterSettings{Brightness: 1, Contrast: 1, Saturation: 1}
}

// EditState bundles the timeline with the per-project edit parameters that
// "Save" persists alongside it.
type EditState struct {
	Timeline  *Timeline      `json:"timeline"`
	Filters   FilterSettings `json:"filters"`
	TrimStart float64        `json:"trimStart"`
	TrimEnd   float64        `json:"trimEnd"`
}

// ProjectMetadata describes the source media a project was built around.
type ProjectMetadata struct {
	Duration   float64 `json:"duration"`
	Resolution string  `json:"resolution"` // e.g. "1920x1080"
}

// ProjectFile is the persisted project layout. Version and EditState are
// mandatory; loaders must reject documents missing either without touching
// the in-memory state.
type ProjectFile struct {
	Version   string          `json:"version"`
	VideoURL  string          `json:"videoUrl"`
	EditState *EditState      `json:"editState"`
	Timestamp time.Time       `json:"timestamp"`
	Metadata  ProjectMetadata `json:"metadata"`
}

// ProjectFileVersion is the current serialization version.
const ProjectFileVersion = "1.0"

// ParseProjectFile validates and decodes a serialized project. On any error
// the caller's current state is to be left untouched.
func ParseProjectFile(data []byte) (*ProjectFile, error) {
	var pf ProjectFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("not a valid project file: %w", err)
	}
	if pf.Version == "" {
		return nil, fmt.Errorf("not a valid project file: missing version")
	}
	if pf.EditState == nil {
		return nil, fmt.Errorf("not a valid project file: missing editState")
	}
	if pf.EditState.Timeline == nil {
		return nil, fmt.Errorf("not a valid project file: editState has no timeline")
	}
	// A document without filters decodes to the zero value, which would
	// render every frame black. Zero filters mean "absent", not "all off".
	if pf.EditState.Filters == (FilterSettings{}) {
		pf.EditState.Filters = DefaultFilters()
	}
	return &pf, nil
}

// Encode serializes the project file.
func (pf *ProjectFile) Encode() ([]byte, error) {
	return json.MarshalIndent(pf, "", "  ")
}

// Project is the database record wrapping a stored project document.
type Project struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"size:255"`
	Document  []byte    `json:"-" gorm:"type:longblob"` // serialized ProjectFile
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
