package scraper

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

const tableWithDataInHeader = `<table id="ctl00_PHZonePrincipale_ctl01_TableTableau">
<tr><td class="TableauEnergieLabel">03/01/2021</td><td class="TableauEnergie"><span>999</span></td></tr>
<tr><td class="TableauEnergieLabel">03/02/2021</td><td class="TableauEnergie"><span>12</span></td></tr>
<tr><td class="TableauEnergieLabel">03/03/2021</td><td class="TableauEnergie">n/a</td></tr>
<tr><td class="TableauEnergie"><span>7</span></td></tr>
<tr><td class="TableauEnergieLabel">03/04/2021</td><td class="TableauEnergie"><span>
	15
</span></td></tr>
</table>`

func TestExtractRecordsSkipsHeaderRow(t *testing.T) {
	doc := parseHTML(t, tableWithDataInHeader)

	records, err := ExtractRecords(doc, Date(2021, 3, 1), Date(2021, 3, 31))
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, Date(2021, 3, 2), records[0].Date)
	assert.Equal(t, 12, records[0].Liters)
	assert.Equal(t, Date(2021, 3, 4), records[1].Date)
	assert.Equal(t, 15, records[1].Liters)
}

func TestExtractRecordsFiltersRange(t *testing.T) {
	p := Period{2021, time.February}
	doc := parseHTML(t, consumptionPage(p, func(day time.Time) int { return day.Day() }, false))

	records, err := ExtractRecords(doc, Date(2021, 2, 10), Date(2021, 2, 15))
	require.NoError(t, err)

	require.Len(t, records, 6)
	for i, record := range records {
		assert.Equal(t, Date(2021, 2, 10+i), record.Date)
		assert.Equal(t, 10+i, record.Liters)
	}
}

func TestExtractRecordsOutsideRangeIsNotAnError(t *testing.T) {
	doc := parseHTML(t, consumptionPage(Period{2021, time.January}, func(time.Time) int { return 1 }, false))

	records, err := ExtractRecords(doc, Date(2021, 3, 1), Date(2021, 3, 31))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtractRecordsMalformedRow(t *testing.T) {
	doc := parseHTML(t, consumptionPage(Period{2021, time.January}, func(time.Time) int { return 1 }, true))

	records, err := ExtractRecords(doc, Date(2021, 1, 1), Date(2021, 1, 31))
	require.Error(t, err)
	assert.Nil(t, records)
	assert.True(t, errors.Is(err, ErrMalformedDate))
}

func TestExtractRecordsNoTable(t *testing.T) {
	doc := parseHTML(t, `<html><body><p>Session expired</p></body></html>`)

	records, err := ExtractRecords(doc, Date(2021, 1, 1), Date(2021, 1, 31))
	require.Error(t, err)
	assert.Nil(t, records)

	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, "consumption table", navErr.Element)
}

func TestExtractRecordsEmptyTable(t *testing.T) {
	doc := parseHTML(t, `<table id="ctl00_PHZonePrincipale_ctl01_TableTableau">
<tr><th>Date</th><th>Consumption</th></tr>
</table>`)

	records, err := ExtractRecords(doc, Date(2021, 1, 1), Date(2021, 1, 31))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtractRecordsIgnoresNestedDateMarkup(t *testing.T) {
	doc := parseHTML(t, `<table id="ctl00_PHZonePrincipale_ctl01_TableTableau">
<tr><th>Date</th><th>Consumption</th></tr>
<tr><td class="TableauEnergieLabel">03/15/2021<span> Mon</span></td><td class="TableauEnergie"><span>42</span></td></tr>
<tr><td class="TableauEnergieLabel"><b>*</b> 03/16/2021 </td><td class="TableauEnergie"><span>7</span></td></tr>
</table>`)

	records, err := ExtractRecords(doc, Date(2021, 3, 1), Date(2021, 3, 31))
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, Date(2021, 3, 15), records[0].Date)
	assert.Equal(t, 42, records[0].Liters)
	assert.Equal(t, Date(2021, 3, 16), records[1].Date)
	assert.Equal(t, 7, records[1].Liters)
}

func TestTableRowsStopsEarly(t *testing.T) {
	doc := parseHTML(t, consumptionPage(Period{2021, time.April}, func(time.Time) int { return 3 }, false))

	seen := 0
	for record, err := range TableRows(doc) {
		require.NoError(t, err)
		assert.Equal(t, 3, record.Liters)
		seen++
		if seen == 5 {
			break
		}
	}
	assert.Equal(t, 5, seen)

	// The sequence can be walked again from the start
	var all int
	for _, err := range TableRows(doc) {
		require.NoError(t, err)
		all++
	}
	assert.Equal(t, 30, all)
}
