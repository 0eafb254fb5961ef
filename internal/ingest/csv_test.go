package ingest_test

import (
	"errors"
	"maps"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"azureorm/internal/domain"
	"azureorm/internal/ingest"
	"azureorm/internal/schema"
)

func collect(t *testing.T, input string, table *schema.Table, opts ingest.Options) ([]map[string]any, error) {
	t.Helper()
	var out []map[string]any
	for row, err := range ingest.Rows(strings.NewReader(input), table, opts) {
		if err != nil {
			return out, err
		}
		out = append(out, maps.Clone(row))
	}
	return out, nil
}

func TestRows_TradeVolume(t *testing.T) {
	input := "Importer,Exporter,Year,ValueBillionUSD\n" +
		"USA,CHN,2020,1.5\n" +
		"FRA,DEU,2021,\n"

	rows, err := collect(t, input, domain.TradeVolumeByCountryPair{}.Table(), ingest.Options{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, map[string]any{
		"Importer":        "USA",
		"Exporter":        "CHN",
		"Year":            int16(2020),
		"ValueBillionUSD": float32(1.5),
	}, rows[0])
	assert.Nil(t, rows[1]["ValueBillionUSD"])
}

func TestRows_AliasesAndDelimiter(t *testing.T) {
	input := "i;j;t;k;v;q\nUSA;CHN;2019;27;3.25;10\n"
	opts := ingest.Options{
		Comma: ';',
		Aliases: map[string]string{
			"i": "Importer", "j": "Exporter", "t": "Year",
			"k": "ProductCode", "v": "ValueBillionUSD", "q": "Volume",
		},
	}

	rows, err := collect(t, input, domain.TradeVolumeByProduct{}.Table(), opts)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "27", rows[0]["ProductCode"])
	assert.Equal(t, float32(10), rows[0]["Volume"])
}

func TestRows_Timestamps(t *testing.T) {
	input := "id,news_url,title,window_end_date,publish_date,valid\n" +
		"x,https://example.com,T,2025-03-01,2025-03-01T10:00:00Z,true\n"

	rows, err := collect(t, input, domain.NewsSummary{}.Table(), ingest.Options{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), rows[0]["window_end_date"])
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), rows[0]["publish_date"])
	assert.Equal(t, true, rows[0]["valid"])
}

func TestRows_Errors(t *testing.T) {
	table := domain.CountryInfo{}.Table()

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"unknown header", "CountryISO3,Year,Capital\nFRA,2020,Paris\n", schema.ErrUnknownColumn},
		{"duplicate header", "CountryISO3,Year,Year\nFRA,2020,2020\n", ingest.ErrMalformed},
		{"bad number", "CountryISO3,Year\nFRA,twenty\n", ingest.ErrMalformed},
		{"year out of range", "CountryISO3,Year\nFRA,70000\n", ingest.ErrMalformed},
		{"empty required", "CountryISO3,Year\nFRA,\n", ingest.ErrMalformed},
		{"ragged record", "CountryISO3,Year\nFRA,2020,extra\n", ingest.ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := collect(t, tt.input, table, ingest.Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestRows_EmptyInput(t *testing.T) {
	_, err := collect(t, "", domain.CountryInfo{}.Table(), ingest.Options{})
	assert.Error(t, err)
}

func TestRows_StopsEarly(t *testing.T) {
	input := "CountryISO3,Year\nFRA,2020\nDEU,2020\nITA,2020\n"
	n := 0
	for _, err := range ingest.Rows(strings.NewReader(input), domain.CountryInfo{}.Table(), ingest.Options{}) {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}
