package scene

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// OriginEntry is the known telemetry-to-map translation for one recording.
type OriginEntry struct {
	Dataset string  `yaml:"dataset"`
	FileID  int     `yaml:"file_id"`
	DX      float64 `yaml:"dx"`
	DZ      float64 `yaml:"dz"`
}

type originFile struct {
	Origins []OriginEntry `yaml:"origins"`
}

type originKey struct {
	dataset string
	fileID  int
}

// OriginTable maps (dataset, file id) to a canonical offset. Recordings in
// the table bypass the first-contact heuristic.
type OriginTable struct {
	entries map[originKey]Offset
}

// LoadOriginTable reads a YAML origin table from path.
func LoadOriginTable(path string) (*OriginTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open origin table: %w", err)
	}
	defer f.Close()
	return ParseOriginTable(f)
}

// ParseOriginTable decodes a YAML origin table:
//
//	origins:
//	  - {dataset: highD, file_id: 1, dx: -210.5, dz: 12.0}
func ParseOriginTable(r io.Reader) (*OriginTable, error) {
	var doc originFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode origin table: %w", err)
	}
	t := &OriginTable{entries: make(map[originKey]Offset, len(doc.Origins))}
	for i, e := range doc.Origins {
		if e.Dataset == "" || e.FileID < 1 {
			return nil, fmt.Errorf("origin entry %d: dataset and file_id >= 1 are required", i)
		}
		k := originKey{strings.ToLower(e.Dataset), e.FileID}
		if _, dup := t.entries[k]; dup {
			return nil, fmt.Errorf("origin entry %d: duplicate %s/%d", i, e.Dataset, e.FileID)
		}
		t.entries[k] = Offset{DX: e.DX, DZ: e.DZ}
	}
	return t, nil
}

// Len returns the number of entries.
func (t *OriginTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Lookup returns the canonical offset for a recording.
func (t *OriginTable) Lookup(dataset string, fileID int) (Offset, bool) {
	if t == nil {
		return Offset{}, false
	}
	o, ok := t.entries[originKey{strings.ToLower(dataset), fileID}]
	return o, ok
}

// Strategy returns a FixedOffset for known recordings and
// FirstContactOffset otherwise. A nil table always falls back.
func (t *OriginTable) Strategy(dataset string, fileID int) OffsetStrategy {
	if o, ok := t.Lookup(dataset, fileID); ok {
		return FixedOffset(o)
	}
	return FirstContactOffset{}
}
