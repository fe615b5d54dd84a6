package worldmap

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/rover-perception/pkg/types"
)

const (
	metadataVersion = 1
	countsEncoding  = "uint32le"
)

// metadata is the YAML sidecar describing a saved counter blob
type metadata struct {
	Version  int      `yaml:"version"`
	Data     string   `yaml:"data"`
	Size     int      `yaml:"size"`
	Channels []string `yaml:"channels"`
	Encoding string   `yaml:"encoding"`
}

// Save writes the map as a YAML metadata file plus a raw counter blob next to it.
// The blob takes the metadata file's base name with a .counts.bin extension.
func (m *Map) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create map directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	meta := metadata{
		Version:  metadataVersion,
		Data:     base + ".counts.bin",
		Size:     m.size,
		Encoding: countsEncoding,
	}
	for _, c := range types.Classes {
		meta.Channels = append(meta.Channels, c.String())
	}

	cells := m.Snapshot()
	blob := make([]byte, 4*len(cells))
	for i, v := range cells {
		binary.LittleEndian.PutUint32(blob[4*i:], v)
	}
	if err := os.WriteFile(filepath.Join(dir, meta.Data), blob, 0644); err != nil {
		return fmt.Errorf("failed to write map data: %w", err)
	}

	data, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("failed to marshal map metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write map metadata: %w", err)
	}
	return nil
}

// Load reads a map written by Save
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read map metadata: %w", err)
	}
	var meta metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse map metadata: %w", err)
	}
	if meta.Version != metadataVersion {
		return nil, fmt.Errorf("unsupported map version %d", meta.Version)
	}
	if meta.Encoding != countsEncoding {
		return nil, fmt.Errorf("unsupported map encoding %q", meta.Encoding)
	}
	if len(meta.Channels) != types.NumClasses {
		return nil, fmt.Errorf("map has %d channels, want %d", len(meta.Channels), types.NumClasses)
	}
	for i, c := range types.Classes {
		if meta.Channels[i] != c.String() {
			return nil, fmt.Errorf("map channel %d is %q, want %q", i, meta.Channels[i], c)
		}
	}

	if meta.Size <= 0 || meta.Size > MaxSize {
		return nil, fmt.Errorf("map size %d out of range [1, %d]", meta.Size, MaxSize)
	}

	// Check the blob length before allocating anything sized by the metadata
	dataPath := filepath.Join(filepath.Dir(path), meta.Data)
	info, err := os.Stat(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read map data: %w", err)
	}
	want := int64(4*types.NumClasses) * int64(meta.Size) * int64(meta.Size)
	if info.Size() != want {
		return nil, fmt.Errorf("map data is %d bytes, want %d", info.Size(), want)
	}

	m, err := New(meta.Size)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read map data: %w", err)
	}
	if len(blob) != 4*len(m.cells) {
		return nil, fmt.Errorf("map data is %d bytes, want %d", len(blob), 4*len(m.cells))
	}
	for i := range m.cells {
		m.cells[i] = binary.LittleEndian.Uint32(blob[4*i:])
	}
	return m, nil
}
