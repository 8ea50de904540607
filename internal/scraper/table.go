package scraper

import (
	"iter"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jgoulah/waterscraper/pkg/models"
)

const (
	consumptionTableRows = "table#ctl00_PHZonePrincipale_ctl01_TableTableau tr"
	dateCellSelector     = "td.TableauEnergieLabel"
	valueCellSelector    = "td.TableauEnergie span"
)

// TableRows yields the parsed data rows of a daily consumption page. The
// header row is always skipped, as are rows lacking a date or value cell
// (summary and footer rows). A row whose cells do not parse yields an error
// and ends the sequence, as does a page without the consumption table.
func TableRows(doc *goquery.Document) iter.Seq2[models.Consumption, error] {
	return func(yield func(models.Consumption, error) bool) {
		rows := doc.Find(consumptionTableRows)
		if rows.Length() == 0 {
			yield(models.Consumption{}, &NavigationError{Page: documentURL(doc), Element: "consumption table"})
			return
		}
		for i := 1; i < rows.Length(); i++ {
			row := rows.Eq(i)

			dateCell := row.Find(dateCellSelector).First()
			valueCell := row.Find(valueCellSelector).First()
			if dateCell.Length() == 0 || valueCell.Length() == 0 {
				continue
			}

			record, err := ParseRow(ownText(dateCell), valueCell.Text())
			if err != nil {
				yield(models.Consumption{}, err)
				return
			}
			if !yield(record, nil) {
				return
			}
		}
	}
}

// ExtractRecords returns the rows of doc dated within [notBefore, notAfter]
func ExtractRecords(doc *goquery.Document, notBefore, notAfter time.Time) ([]models.Consumption, error) {
	notBefore, notAfter = DateOf(notBefore), DateOf(notAfter)

	var records []models.Consumption
	for record, err := range TableRows(doc) {
		if err != nil {
			return nil, err
		}
		if record.Date.Before(notBefore) || record.Date.After(notAfter) {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// ownText is the text of s without the text of its child elements
func ownText(s *goquery.Selection) string {
	return s.Contents().FilterFunction(func(_ int, node *goquery.Selection) bool {
		return goquery.NodeName(node) == "#text"
	}).Text()
}

func documentURL(doc *goquery.Document) string {
	if doc.Url == nil {
		return ""
	}
	return doc.Url.String()
}
