package scraper

import (
	"strconv"
	"strings"
	"time"

	"github.com/jgoulah/waterscraper/pkg/models"
)

// portalDateLayout is how the consumption table renders dates (MM/DD/YYYY)
const portalDateLayout = "01/02/2006"

// ParseRow converts the date and consumption cell text of one table row
func ParseRow(dateText, consumptionText string) (models.Consumption, error) {
	dateText = strings.TrimSpace(dateText)
	date, err := time.Parse(portalDateLayout, dateText)
	if err != nil {
		return models.Consumption{}, &ParseError{Kind: MalformedDate, Text: dateText, Err: err}
	}

	consumptionText = strings.TrimSpace(consumptionText)
	liters, err := strconv.Atoi(consumptionText)
	if err != nil {
		return models.Consumption{}, &ParseError{Kind: MalformedConsumption, Text: consumptionText, Err: err}
	}

	return models.Consumption{Date: date, Liters: liters}, nil
}
