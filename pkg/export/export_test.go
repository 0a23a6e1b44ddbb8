package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	data := Dataset{
		Headers: []string{"Student", "Rate (%)"},
		Rows: []map[string]string{
			{"Student": "Budi Santoso", "Rate (%)": "92.50"},
		},
	}

	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Student,Rate (%)", lines[0])
	assert.Equal(t, "Budi Santoso,92.50", lines[1])
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	data := Dataset{
		Headers: []string{"Student", "Present", "Total"},
		Rows: []map[string]string{
			{"Student": "Budi Santoso", "Present": "18", "Total": "20"},
		},
	}

	out, err := NewPDFExporter().Render(data, "Attendance")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF"))
}

func TestColumnWidthsFavourLongColumns(t *testing.T) {
	data := Dataset{
		Headers: []string{"Student", "Total"},
		Rows: []map[string]string{
			{"Student": "Budi Hermawan Santoso Wijaya", "Total": "20"},
		},
	}

	widths := columnWidths(data, 190.0)
	require.Len(t, widths, 2)
	assert.Greater(t, widths[0], widths[1])
	assert.InDelta(t, 190.0, widths[0]+widths[1], 0.001)
}

func TestColumnWidthsCapRunawayCells(t *testing.T) {
	data := Dataset{
		Headers: []string{"Message", "Total"},
		Rows: []map[string]string{
			{"Message": strings.Repeat("absent ", 50), "Total": "20"},
		},
	}

	widths := columnWidths(data, 190.0)
	// 40 vs 5 after the cap: the short column keeps a usable share.
	assert.Greater(t, widths[1], 20.0)
}
