package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterPadsShortRows(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"Student", "Heaps", "Graphs"},
		Rows:    [][]string{{"Sam", "4"}, {"Tia", "5", "3"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Student,Heaps,Graphs\nSam,4,\nTia,5,3\n", string(out))
}

func TestCSVExporterRejectsWideRows(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{Headers: []string{"a"}, Rows: [][]string{{"1", "2"}}})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(Dataset{
		Title:   "Gradebook",
		Headers: []string{"Student", "Heaps"},
		Rows:    [][]string{{"Sam", "4"}},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{})
	assert.Error(t, err)
}
