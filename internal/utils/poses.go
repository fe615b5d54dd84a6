package utils

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/menta2k/rover-perception/pkg/types"
)

// PoseRecord is one row of a drive log: the frame image and the pose it was captured at
type PoseRecord struct {
	Frame string
	Pose  types.Pose
}

// Column names accepted for each field, lower-cased
var poseColumns = map[string][]string{
	"frame": {"path", "frame", "image"},
	"x":     {"x_position", "x"},
	"y":     {"y_position", "y"},
	"yaw":   {"yaw"},
}

// ReadPoseLog parses a drive log with a header row. Both the simulator's
// semicolon-separated log and plain comma-separated files are accepted.
// Relative frame paths are resolved against baseDir.
func ReadPoseLog(r io.Reader, baseDir string) ([]PoseRecord, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read pose log header: %w", err)
	}

	comma := ','
	if strings.Count(header, ";") > strings.Count(header, ",") {
		comma = ';'
	}

	cr := csv.NewReader(io.MultiReader(strings.NewReader(header), br))
	cr.Comma = comma
	cr.TrimLeadingSpace = true

	names, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to parse pose log header: %w", err)
	}
	idx, err := locateColumns(names)
	if err != nil {
		return nil, err
	}

	var records []PoseRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pose log line %d: %w", line, err)
		}

		var vals [3]float64
		for i, key := range []string{"x", "y", "yaw"} {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[idx[key]]), 64)
			if err != nil {
				return nil, fmt.Errorf("pose log line %d: bad %s: %w", line, key, err)
			}
			vals[i] = v
		}

		frame := strings.TrimSpace(row[idx["frame"]])
		if !filepath.IsAbs(frame) && baseDir != "" {
			frame = filepath.Join(baseDir, frame)
		}
		records = append(records, PoseRecord{
			Frame: frame,
			Pose:  types.Pose{X: vals[0], Y: vals[1], Yaw: vals[2]},
		})
	}
	return records, nil
}

// LoadPoseLog reads a drive log file, resolving frames relative to the file
func LoadPoseLog(path string) ([]PoseRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pose log: %w", err)
	}
	defer f.Close()
	return ReadPoseLog(f, filepath.Dir(path))
}

func locateColumns(names []string) (map[string]int, error) {
	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[strings.ToLower(strings.TrimSpace(n))] = i
	}

	idx := make(map[string]int, len(poseColumns))
	for key, aliases := range poseColumns {
		found := false
		for _, a := range aliases {
			if i, ok := pos[a]; ok {
				idx[key] = i
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("pose log has no %s column (want one of %v)", key, aliases)
		}
	}
	return idx, nil
}
