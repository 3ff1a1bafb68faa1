package checksum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate_Deterministic(t *testing.T) {
	c := New()
	a := c.Calculate([]byte("monthly_budget"))
	b := c.Calculate([]byte("monthly_budget"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestCalculate_DiffersPerInput(t *testing.T) {
	c := New()
	assert.NotEqual(t, c.Calculate([]byte("a")), c.Calculate([]byte("b")))
}

func TestShort_LengthAndPrefix(t *testing.T) {
	c := New()
	full := c.Calculate([]byte("sales_2024"))
	short := c.Short([]byte("sales_2024"), 6)
	assert.Len(t, short, 6)
	assert.Equal(t, full[:6], short)
}

func TestShort_ClampsLength(t *testing.T) {
	c := New()
	assert.Len(t, c.Short([]byte("x"), 0), 1)
	assert.Len(t, c.Short([]byte("x"), 999), 64)
}

func TestCalculateFile(t *testing.T) {
	c := New()
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte("row data"), 0o600))

	got, err := c.CalculateFile(path)
	require.NoError(t, err)
	assert.Equal(t, c.Calculate([]byte("row data")), got)

	_, err = c.CalculateFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
