package domain

type QuoteSource string

const (
	QuoteSourceLive   QuoteSource = "live"
	QuoteSourceStatic QuoteSource = "static"
)

type ShippingZone string

const (
	ZoneDomestic         ShippingZone = "domestic"
	ZoneEU               ShippingZone = "eu"
	ZoneEurope           ShippingZone = "europe"
	ZoneIntercontinental ShippingZone = "intercontinental"
	ZoneRestOfWorld      ShippingZone = "rest_of_world"
)

type DeliveryRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type ShippingQuote struct {
	CostMinorUnits int64         `json:"costMinorUnits"`
	Currency       string        `json:"currency"`
	Carrier        string        `json:"carrier"`
	Service        string        `json:"service"`
	Zone           ShippingZone  `json:"zone"`
	EstimatedDays  DeliveryRange `json:"estimatedDays"`
	EstimateText   string        `json:"estimateText"`
	Source         QuoteSource   `json:"source"`
}

func (q ShippingQuote) Method() ShippingMethod {
	return ShippingMethod{
		Carrier:       q.Carrier,
		Service:       q.Service,
		Zone:          q.Zone,
		EstimatedDays: q.EstimatedDays,
		Source:        q.Source,
	}
}
