package worldmap

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/rover-perception/pkg/types"
)

func TestNew(t *testing.T) {
	m, err := New(200)
	require.NoError(t, err)
	assert.Equal(t, 200, m.Size())
	assert.Len(t, m.Snapshot(), 200*200*types.NumClasses)

	_, err = New(MaxSize + 1)
	assert.Error(t, err)
	_, err = New(0)
	assert.Error(t, err)
}

func TestAccumulateRepeatedIndices(t *testing.T) {
	m, err := New(10)
	require.NoError(t, err)

	require.NoError(t, m.Accumulate(types.Rock, []int{3, 3, 3, 4}, []int{7, 7, 7, 7}))
	assert.Equal(t, uint32(3), m.At(3, 7, types.Rock))
	assert.Equal(t, uint32(1), m.At(4, 7, types.Rock))
	assert.Equal(t, uint32(0), m.At(3, 7, types.Ground))
	assert.Equal(t, uint32(0), m.At(7, 3, types.Rock))
}

func TestAccumulateDoublesOnRepeat(t *testing.T) {
	m, err := New(20)
	require.NoError(t, err)
	xs := []int{0, 5, 5, 19, 12}
	ys := []int{0, 6, 6, 19, 1}

	require.NoError(t, m.Accumulate(types.Ground, xs, ys))
	once := m.Snapshot()
	require.NoError(t, m.Accumulate(types.Ground, xs, ys))
	twice := m.Snapshot()

	for i := range once {
		assert.Equal(t, 2*once[i], twice[i], "cell %d", i)
	}
}

func TestAccumulateDisjointSets(t *testing.T) {
	m, err := New(8)
	require.NoError(t, err)

	require.NoError(t, m.Accumulate(types.Obstacle, []int{0, 1}, []int{0, 1}))
	before := m.Snapshot()
	require.NoError(t, m.Accumulate(types.Obstacle, []int{5, 6}, []int{5, 6}))
	after := m.Snapshot()

	changed := 0
	for i := range before {
		if before[i] != after[i] {
			changed++
		}
	}
	assert.Equal(t, 2, changed)
	assert.Equal(t, uint32(1), m.At(0, 0, types.Obstacle))
	assert.Equal(t, uint32(1), m.At(6, 6, types.Obstacle))
}

func TestAccumulateRejectsBadInput(t *testing.T) {
	m, err := New(4)
	require.NoError(t, err)

	err = m.Accumulate(types.Ground, []int{1, 2}, []int{1})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	err = m.Accumulate(types.Ground, []int{1, 4}, []int{1, 1})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	err = m.Accumulate(types.Ground, []int{-1}, []int{0})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	err = m.Accumulate(types.Class(7), []int{1}, []int{1})
	assert.ErrorIs(t, err, ErrUnknownClass)

	// Nothing from the rejected calls was applied
	for _, v := range m.Snapshot() {
		assert.Zero(t, v)
	}
}

func TestAccumulateEmpty(t *testing.T) {
	m, err := New(4)
	require.NoError(t, err)
	require.NoError(t, m.Accumulate(types.Rock, nil, nil))
	assert.Zero(t, m.Stats()[types.Rock].Total)
}

func TestAccumulateSaturates(t *testing.T) {
	m, err := New(2)
	require.NoError(t, err)
	m.cells[m.offset(1, 1, types.Ground)] = math.MaxUint32 - 1

	require.NoError(t, m.Accumulate(types.Ground, []int{1, 1, 1}, []int{1, 1, 1}))
	assert.Equal(t, uint32(math.MaxUint32), m.At(1, 1, types.Ground))
}

func TestChannelAndStats(t *testing.T) {
	m, err := New(3)
	require.NoError(t, err)
	require.NoError(t, m.Accumulate(types.Rock, []int{0, 2, 2}, []int{1, 2, 2}))
	require.NoError(t, m.Accumulate(types.Ground, []int{1}, []int{1}))

	ch := m.Channel(types.Rock)
	assert.Equal(t, []uint32{0, 0, 0, 1, 0, 0, 0, 0, 2}, ch)

	stats := m.Stats()
	assert.Equal(t, types.Rock, stats[types.Rock].Class)
	assert.Equal(t, 2, stats[types.Rock].Touched)
	assert.Equal(t, uint64(3), stats[types.Rock].Total)
	assert.Equal(t, uint32(2), stats[types.Rock].Max)
	assert.Equal(t, 1, stats[types.Ground].Touched)
	assert.Equal(t, 0, stats[types.Obstacle].Touched)
}

func TestSaveLoad(t *testing.T) {
	m, err := New(5)
	require.NoError(t, err)
	require.NoError(t, m.Accumulate(types.Obstacle, []int{0, 4}, []int{4, 0}))
	require.NoError(t, m.Accumulate(types.Ground, []int{2, 2}, []int{3, 3}))

	path := filepath.Join(t.TempDir(), "maps", "mission.yaml")
	require.NoError(t, m.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "data: mission.counts.bin")
	assert.Contains(t, string(data), "size: 5")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Size(), loaded.Size())
	assert.Equal(t, m.Snapshot(), loaded.Snapshot())

	// Accumulation resumes on the loaded map
	require.NoError(t, loaded.Accumulate(types.Ground, []int{2}, []int{3}))
	assert.Equal(t, uint32(3), loaded.At(2, 3, types.Ground))
}

func TestLoadRejectsCorruptData(t *testing.T) {
	dir := t.TempDir()
	m, err := New(3)
	require.NoError(t, err)
	path := filepath.Join(dir, "map.yaml")
	require.NoError(t, m.Save(path))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "map.counts.bin"), []byte{1, 2, 3}, 0644))
	_, err = Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("version: 2\n"), 0644))
	_, err = Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveWithBinExtensionKeepsCounts(t *testing.T) {
	dir := t.TempDir()
	m, err := New(4)
	require.NoError(t, err)
	require.NoError(t, m.Accumulate(types.Rock, []int{1, 3}, []int{2, 0}))

	path := filepath.Join(dir, "map.bin")
	require.NoError(t, m.Save(path))
	assert.FileExists(t, filepath.Join(dir, "map.counts.bin"))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Snapshot(), loaded.Snapshot())
}

func TestLoadRejectsCorruptSize(t *testing.T) {
	dir := t.TempDir()
	m, err := New(3)
	require.NoError(t, err)
	path := filepath.Join(dir, "map.yaml")
	require.NoError(t, m.Save(path))

	for _, size := range []string{"2000000000", "0", "-5", "4"} {
		meta := "version: 1\ndata: map.counts.bin\nsize: " + size +
			"\nchannels: [obstacle, rock, ground]\nencoding: uint32le\n"
		require.NoError(t, os.WriteFile(path, []byte(meta), 0644))

		_, err := Load(path)
		assert.Error(t, err, "size=%s", size)
	}
}
