package ranking

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJournalMetricsMissingFile(t *testing.T) {
	t.Parallel()

	metrics, err := LoadJournalMetrics(filepath.Join(t.TempDir(), "nope.csv"), nil)
	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestLoadJournalMetricsSkipsBadRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal_metrics.csv")
	content := strings.Join([]string{
		"rank,title,sjr",
		"1,Nature,18.5",
		"2,  Cell   Reports ,3.2",
		"3,Broken Journal,n/a",
		"4,,1.0",
		"5,Short row",
		"6,Neg Journal,-3",
		"7,Nan Journal,NaN",
		"8,Inf Journal,+Inf",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	metrics, err := LoadJournalMetrics(path, nil)
	require.NoError(t, err)
	assert.Equal(t, JournalMetrics{"nature": 18.5, "cell reports": 3.2}, metrics)
}

func TestLoadJournalMetricsSemicolonExport(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scimago.csv")
	content := "Rank;Sourceid;Title;Type;SJR\n1;28773;\"Ca-A Cancer Journal for Clinicians\";journal;\"62,937\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	metrics, err := LoadJournalMetrics(path, nil)
	require.NoError(t, err)

	value, ok := metrics.Lookup("CA-A Cancer Journal for Clinicians")
	require.True(t, ok)
	assert.InDelta(t, 62.937, value, 1e-9)
}

func TestLoadJournalMetricsWithoutRequiredColumns(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,score\nNature,1\n"), 0o600))

	metrics, err := LoadJournalMetrics(path, nil)
	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestJournalQualityStaysNeutralForInvalidValues(t *testing.T) {
	t.Parallel()

	journals := JournalMetrics{
		"neg journal": -3,
		"nan journal": math.NaN(),
		"inf journal": math.Inf(1),
		"nature":      18.5,
	}

	for _, venue := range []string{"Neg Journal", "Nan Journal", "Inf Journal"} {
		quality, source := JournalQuality(venue, journals)
		assert.Equal(t, 1.0, quality, venue)
		require.NotNil(t, source, venue)
	}

	quality, _ := JournalQuality("Nature", journals)
	assert.InDelta(t, math.Log1p(18.5), quality, 1e-12)
}
