package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relbias/pkg/model"
	"relbias/pkg/relpos"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, stderr bytes.Buffer
	cmd := NewCLI()
	cmd.SetOut(&out)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIndexCmd(t *testing.T) {
	out, err := run(t, "index", "--window", "2x2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, []string{"0", "4", "3", "1", "0"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"3", "8", "7", "5", "4"}, strings.Fields(lines[4]))
	assert.Contains(t, lines[5], "vocab size 9, 9 distinct ids")
}

func TestIndexCmd_ClassToken(t *testing.T) {
	out, err := run(t, "index", "-w", "2x2", "--class-token")
	require.NoError(t, err)
	assert.Contains(t, out, "vocab size 12, 12 distinct ids")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{"0", "11", "9", "9", "9", "9"}, strings.Fields(lines[1]))
}

func TestIndexCmd_Errors(t *testing.T) {
	_, err := run(t, "index", "-w", "2x2", "--key-window", "3x3", "--class-token")
	assert.True(t, errors.Is(err, relpos.ErrUnsupportedConfig), "got %v", err)

	_, err = run(t, "index", "-w", "0x2")
	assert.True(t, errors.Is(err, relpos.ErrInvalidConfig), "got %v", err)
}

func TestCoordsCmd(t *testing.T) {
	out, err := run(t, "coords", "-w", "2x2", "--mode", "swin")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 10)
	assert.Equal(t, []string{"DROW", "DCOL", "Y", "X"}, strings.Fields(lines[0]))
	// Offset (0, 0) sits in the middle of the grid
	assert.Equal(t, []string{"0", "0", "0.0000", "0.0000"}, strings.Fields(lines[5]))
	assert.Equal(t, []string{"1", "1", "1.0566", "1.0566"}, strings.Fields(lines[9]))

	_, err = run(t, "coords", "-w", "1x3", "--mode", "swin")
	assert.True(t, errors.Is(err, relpos.ErrInvalidConfig), "got %v", err)

	_, err = run(t, "coords", "--mode", "linear")
	assert.True(t, errors.Is(err, relpos.ErrInvalidConfig), "got %v", err)
}

func TestLookupCmd(t *testing.T) {
	out, err := run(t, "lookup", "-n", "3", "--max-rel", "1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"0", "1", "2", "-"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"2", "-", "0", "1"}, strings.Fields(lines[3]))
	assert.Contains(t, lines[4], "[3 3 3]")
}

func TestBiasCmd(t *testing.T) {
	out, err := run(t, "bias", "-w", "3x3", "--heads", "2", "--layers", "3", "--half")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "F16 MAX ERR")
	for l, line := range lines[1:] {
		fields := strings.Fields(line)
		assert.Equal(t, []string{string(rune('0' + l)), "[1", "2", "9", "9]"}, fields[:5])
	}
}

func TestBiasCmd_MLPShowHead(t *testing.T) {
	out, err := run(t, "bias", "-w", "2x2", "--variant", "mlp", "--mode", "swin",
		"--heads", "1", "--prefix", "1", "--hidden", "16", "--show-head", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "layer 0, head 0")

	// The prefix row of an MLP bias is zero padded
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := lines[len(lines)-5]
	assert.Equal(t, []string{"0.0000", "0.0000", "0.0000", "0.0000", "0.0000"}, strings.Fields(last))
}

func TestBiasCmd_Errors(t *testing.T) {
	_, err := run(t, "bias", "--variant", "conv")
	assert.True(t, errors.Is(err, relpos.ErrInvalidConfig), "got %v", err)

	_, err = run(t, "bias", "--prefix", "2")
	assert.True(t, errors.Is(err, relpos.ErrInvalidConfig), "got %v", err)

	_, err = run(t, "bias", "--layers", "0")
	assert.Error(t, err)

	_, err = run(t, "bias", "--heads", "2", "--show-head", "2")
	assert.Error(t, err)
}

func TestBuildLayerBiases(t *testing.T) {
	cfg := model.DefaultBiasConfig()
	cfg.Window = relpos.Window{Height: 3, Width: 3}
	cfg.NumHeads = 2

	biases, err := buildLayerBiases(cfg, 4)
	require.NoError(t, err)
	require.Len(t, biases, 4)
	for _, b := range biases {
		assert.Equal(t, []int{1, 2, 9, 9}, b.Shape)
	}
	// Layers are seeded differently
	assert.False(t, biases[0].Equals(biases[1], 0))

	again, err := buildLayerBiases(cfg, 4)
	require.NoError(t, err)
	for l := range biases {
		assert.True(t, biases[l].Equals(again[l], 0))
	}
}

func TestSummarize(t *testing.T) {
	lo, hi, mean := summarize([]float32{1, -2, 4, 1})
	assert.Equal(t, float32(-2), lo)
	assert.Equal(t, float32(4), hi)
	assert.Equal(t, float32(1), mean)
}
