package classifier

import (
	"encoding/json"
	"fmt"
	"os"
)

// Metadata describes an exported model: tensor names and shapes, the class
// order of its output and the square input resolution.
type Metadata struct {
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	Layout      string   `json:"layout"`
}

// LoadMetadata reads and validates a metadata JSON file.
func LoadMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := meta.normalize(); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (m *Metadata) normalize() error {
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}

	layout, err := ParseLayout(m.Layout)
	if err != nil {
		return err
	}
	m.Layout = layout.String()

	if len(m.Classes) != NumLabels {
		return fmt.Errorf("metadata lists %d classes, expected %d", len(m.Classes), NumLabels)
	}
	for i, c := range m.Classes {
		if c != labels[i] {
			return fmt.Errorf("metadata class %d is %q, expected %q", i, c, labels[i])
		}
	}

	if len(m.InputShape) != 4 {
		return fmt.Errorf("input shape must have 4 dimensions, got %v", m.InputShape)
	}
	h, w, c := m.InputShape[1], m.InputShape[2], m.InputShape[3]
	if layout == NCHW {
		c, h, w = m.InputShape[1], m.InputShape[2], m.InputShape[3]
	}
	if m.InputShape[0] != 1 || c != 3 || h != w || h <= 0 {
		return fmt.Errorf("input shape %v is not a single square RGB image in %s order", m.InputShape, layout)
	}
	if m.ImageSize == 0 {
		m.ImageSize = int(h)
	}
	if int64(m.ImageSize) != h {
		return fmt.Errorf("image size %d does not match input shape %v", m.ImageSize, m.InputShape)
	}

	var outputs int64 = 1
	for _, d := range m.OutputShape {
		outputs *= d
	}
	if len(m.OutputShape) == 0 || outputs != int64(NumLabels) {
		return fmt.Errorf("output shape %v does not yield %d probabilities", m.OutputShape, NumLabels)
	}
	return nil
}

// InputLayout returns the parsed tensor layout.
func (m *Metadata) InputLayout() Layout {
	layout, _ := ParseLayout(m.Layout)
	return layout
}
