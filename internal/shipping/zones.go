package shipping

import (
	"fmt"
	"strings"

	"settlement/internal/domain"
)

var euCountries = map[string]struct{}{
	"AT": {}, "BE": {}, "BG": {}, "HR": {}, "CY": {}, "CZ": {}, "DK": {}, "EE": {}, "FI": {},
	"FR": {}, "DE": {}, "GR": {}, "HU": {}, "IE": {}, "IT": {}, "LV": {}, "LT": {}, "LU": {},
	"MT": {}, "NL": {}, "PL": {}, "PT": {}, "RO": {}, "SK": {}, "SI": {}, "ES": {}, "SE": {},
}

// European countries outside the EU customs area.
var otherEuropeCountries = map[string]struct{}{
	"GB": {}, "CH": {}, "NO": {}, "IS": {}, "LI": {}, "MC": {}, "SM": {}, "AD": {}, "VA": {},
	"AL": {}, "BA": {}, "ME": {}, "MK": {}, "RS": {}, "MD": {}, "UA": {}, "TR": {},
}

// Destinations with regular intercontinental parcel service.
var intercontinentalCountries = map[string]struct{}{
	"US": {}, "CA": {}, "AU": {}, "NZ": {}, "JP": {}, "KR": {}, "SG": {}, "HK": {}, "TW": {},
	"IL": {}, "AE": {}, "MX": {}, "BR": {}, "CN": {}, "IN": {}, "ZA": {},
}

func zoneFor(origin, destination string) domain.ShippingZone {
	destination = strings.ToUpper(strings.TrimSpace(destination))
	if destination == strings.ToUpper(origin) {
		return domain.ZoneDomestic
	}
	if _, ok := euCountries[destination]; ok {
		return domain.ZoneEU
	}
	if _, ok := otherEuropeCountries[destination]; ok {
		return domain.ZoneEurope
	}
	if _, ok := intercontinentalCountries[destination]; ok {
		return domain.ZoneIntercontinental
	}
	return domain.ZoneRestOfWorld
}

type weightTier struct {
	maxGrams int
	cost     string
}

// Flat EUR rates per zone. Parcels above the last tier pay the last tier.
var staticRates = map[domain.ShippingZone][]weightTier{
	domain.ZoneDomestic:         {{500, "4.95"}, {2000, "6.95"}, {10000, "12.95"}},
	domain.ZoneEU:               {{500, "9.95"}, {2000, "14.95"}, {10000, "24.95"}},
	domain.ZoneEurope:           {{500, "12.95"}, {2000, "19.95"}, {10000, "34.95"}},
	domain.ZoneIntercontinental: {{500, "19.95"}, {2000, "29.95"}, {10000, "59.95"}},
	domain.ZoneRestOfWorld:      {{500, "24.95"}, {2000, "39.95"}, {10000, "69.95"}},
}

var zoneDeliveryDays = map[domain.ShippingZone]domain.DeliveryRange{
	domain.ZoneDomestic:         {Min: 1, Max: 2},
	domain.ZoneEU:               {Min: 2, Max: 5},
	domain.ZoneEurope:           {Min: 3, Max: 7},
	domain.ZoneIntercontinental: {Min: 5, Max: 12},
	domain.ZoneRestOfWorld:      {Min: 7, Max: 21},
}

func tierCost(zone domain.ShippingZone, weightGrams int) string {
	tiers := staticRates[zone]
	for _, tier := range tiers {
		if weightGrams <= tier.maxGrams {
			return tier.cost
		}
	}
	return tiers[len(tiers)-1].cost
}

var expressMarkers = []string{"express", "priority", "next day", "24h", "overnight"}

// EstimateDelivery derives a day range from the zone, shortened for express services.
func EstimateDelivery(carrier, service string, zone domain.ShippingZone) domain.DeliveryRange {
	days, ok := zoneDeliveryDays[zone]
	if !ok {
		days = zoneDeliveryDays[domain.ZoneRestOfWorld]
	}
	name := strings.ToLower(carrier + " " + service)
	for _, marker := range expressMarkers {
		if strings.Contains(name, marker) {
			days.Min = max(1, days.Min-1)
			days.Max = max(days.Min, (days.Max+1)/2)
			break
		}
	}
	return days
}

func estimateText(days domain.DeliveryRange) string {
	switch {
	case days.Min == 1 && days.Max == 1:
		return "1 business day"
	case days.Min == days.Max:
		return fmt.Sprintf("%d business days", days.Min)
	}
	return fmt.Sprintf("%d-%d business days", days.Min, days.Max)
}
