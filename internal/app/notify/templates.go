package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"settlement/internal/domain"
	"settlement/internal/money"
)

type phrases struct {
	Subjects map[domain.NotificationKind]string
	Intros   map[domain.NotificationKind]string
	Greeting string
	Order    string
	Item     string
	Shipping string
	Total    string
	Tracking string
	Delivery string
	Closing  string
}

var englishPhrases = phrases{
	Subjects: map[domain.NotificationKind]string{
		domain.NotificationOrderConfirmation: "Your order %s is confirmed",
		domain.NotificationAdminNewOrder:     "New order %s",
		domain.NotificationShippingUpdate:    "Your order %s is on its way",
		domain.NotificationOrderDelivered:    "Your order %s has been delivered",
		domain.NotificationOrderCancelled:    "Your order %s has been cancelled",
	},
	Intros: map[domain.NotificationKind]string{
		domain.NotificationOrderConfirmation: "Thank you for your purchase. We have received your payment.",
		domain.NotificationAdminNewOrder:     "A new order has been paid.",
		domain.NotificationShippingUpdate:    "Good news, your parcel has been handed to the carrier.",
		domain.NotificationOrderDelivered:    "Your parcel has been delivered. Enjoy!",
		domain.NotificationOrderCancelled:    "Your order has been cancelled. Any payment will be refunded.",
	},
	Greeting: "Hello",
	Order:    "Order",
	Item:     "Item",
	Shipping: "Shipping",
	Total:    "Total",
	Tracking: "Tracking number",
	Delivery: "Estimated delivery",
	Closing:  "Thank you for shopping with us.",
}

// Customer-facing translations. Missing entries fall back to English.
var catalog = map[string]phrases{
	"en": englishPhrases,
	"fr": {
		Subjects: map[domain.NotificationKind]string{
			domain.NotificationOrderConfirmation: "Votre commande %s est confirmée",
			domain.NotificationShippingUpdate:    "Votre commande %s est en route",
			domain.NotificationOrderDelivered:    "Votre commande %s a été livrée",
			domain.NotificationOrderCancelled:    "Votre commande %s a été annulée",
		},
		Intros: map[domain.NotificationKind]string{
			domain.NotificationOrderConfirmation: "Merci pour votre achat. Nous avons bien reçu votre paiement.",
			domain.NotificationShippingUpdate:    "Bonne nouvelle, votre colis a été remis au transporteur.",
			domain.NotificationOrderDelivered:    "Votre colis a été livré. Profitez-en !",
			domain.NotificationOrderCancelled:    "Votre commande a été annulée. Tout paiement sera remboursé.",
		},
		Greeting: "Bonjour", Order: "Commande", Item: "Article", Shipping: "Livraison", Total: "Total",
		Tracking: "Numéro de suivi", Delivery: "Livraison estimée", Closing: "Merci de votre confiance.",
	},
	"de": {
		Subjects: map[domain.NotificationKind]string{
			domain.NotificationOrderConfirmation: "Ihre Bestellung %s ist bestätigt",
			domain.NotificationShippingUpdate:    "Ihre Bestellung %s ist unterwegs",
			domain.NotificationOrderDelivered:    "Ihre Bestellung %s wurde zugestellt",
			domain.NotificationOrderCancelled:    "Ihre Bestellung %s wurde storniert",
		},
		Intros: map[domain.NotificationKind]string{
			domain.NotificationOrderConfirmation: "Vielen Dank für Ihren Einkauf. Ihre Zahlung ist eingegangen.",
			domain.NotificationShippingUpdate:    "Gute Nachrichten, Ihr Paket wurde dem Versanddienst übergeben.",
			domain.NotificationOrderDelivered:    "Ihr Paket wurde zugestellt. Viel Freude damit!",
			domain.NotificationOrderCancelled:    "Ihre Bestellung wurde storniert. Zahlungen werden erstattet.",
		},
		Greeting: "Hallo", Order: "Bestellung", Item: "Artikel", Shipping: "Versand", Total: "Gesamt",
		Tracking: "Sendungsnummer", Delivery: "Voraussichtliche Lieferung", Closing: "Danke für Ihren Einkauf.",
	},
	"es": {
		Subjects: map[domain.NotificationKind]string{
			domain.NotificationOrderConfirmation: "Tu pedido %s está confirmado",
			domain.NotificationShippingUpdate:    "Tu pedido %s está en camino",
			domain.NotificationOrderDelivered:    "Tu pedido %s ha sido entregado",
			domain.NotificationOrderCancelled:    "Tu pedido %s ha sido cancelado",
		},
		Intros: map[domain.NotificationKind]string{
			domain.NotificationOrderConfirmation: "Gracias por tu compra. Hemos recibido tu pago.",
		},
		Greeting: "Hola", Order: "Pedido", Item: "Artículo", Shipping: "Envío", Total: "Total",
		Tracking: "Número de seguimiento", Delivery: "Entrega estimada", Closing: "Gracias por tu compra.",
	},
	"it": {
		Subjects: map[domain.NotificationKind]string{
			domain.NotificationOrderConfirmation: "Il tuo ordine %s è confermato",
			domain.NotificationShippingUpdate:    "Il tuo ordine %s è in viaggio",
		},
		Intros: map[domain.NotificationKind]string{
			domain.NotificationOrderConfirmation: "Grazie per il tuo acquisto. Abbiamo ricevuto il pagamento.",
		},
		Greeting: "Ciao", Order: "Ordine", Item: "Articolo", Shipping: "Spedizione", Total: "Totale",
		Tracking: "Numero di tracciamento", Delivery: "Consegna prevista", Closing: "Grazie per averci scelto.",
	},
	"nl": {
		Subjects: map[domain.NotificationKind]string{
			domain.NotificationOrderConfirmation: "Je bestelling %s is bevestigd",
			domain.NotificationShippingUpdate:    "Je bestelling %s is onderweg",
			domain.NotificationOrderDelivered:    "Je bestelling %s is bezorgd",
		},
		Intros: map[domain.NotificationKind]string{
			domain.NotificationOrderConfirmation: "Bedankt voor je aankoop. We hebben je betaling ontvangen.",
		},
		Greeting: "Hallo", Order: "Bestelling", Item: "Artikel", Shipping: "Verzending", Total: "Totaal",
		Tracking: "Trackingnummer", Delivery: "Verwachte levering", Closing: "Bedankt voor je bestelling.",
	},
	"pt": {
		Subjects: map[domain.NotificationKind]string{
			domain.NotificationOrderConfirmation: "A sua encomenda %s está confirmada",
			domain.NotificationShippingUpdate:    "A sua encomenda %s está a caminho",
		},
		Greeting: "Olá", Order: "Encomenda", Item: "Artigo", Shipping: "Envio", Total: "Total",
		Tracking: "Número de rastreio", Delivery: "Entrega prevista", Closing: "Obrigado pela sua compra.",
	},
	"ja": {
		Subjects: map[domain.NotificationKind]string{
			domain.NotificationOrderConfirmation: "ご注文 %s を承りました",
			domain.NotificationShippingUpdate:    "ご注文 %s を発送しました",
			domain.NotificationOrderDelivered:    "ご注文 %s をお届けしました",
		},
		Intros: map[domain.NotificationKind]string{
			domain.NotificationOrderConfirmation: "ご購入ありがとうございます。お支払いを確認しました。",
		},
		Greeting: "こんにちは", Order: "ご注文", Item: "商品", Shipping: "送料", Total: "合計",
		Tracking: "追跡番号", Delivery: "お届け予定", Closing: "ご利用ありがとうございました。",
	},
}

func lookup(locale string) phrases {
	p, ok := catalog[locale]
	if !ok {
		return englishPhrases
	}
	return p
}

func (p phrases) subject(kind domain.NotificationKind) string {
	if s, ok := p.Subjects[kind]; ok {
		return s
	}
	return englishPhrases.Subjects[kind]
}

func (p phrases) intro(kind domain.NotificationKind) string {
	if s, ok := p.Intros[kind]; ok {
		return s
	}
	return englishPhrases.Intros[kind]
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="{{.Locale}}">
<body>
<p>{{.Text.Greeting}} {{.CustomerName}},</p>
<p>{{.Intro}}</p>
<h2>{{.Text.Order}} {{.OrderNumber}}</h2>
<table>
<tr><th>{{.Text.Item}}</th><th></th></tr>
{{range .Items}}<tr><td>{{.Title}}</td><td>{{.Price}}</td></tr>
{{end}}<tr><td>{{.Text.Shipping}}</td><td>{{.Shipping}}</td></tr>
<tr><td><strong>{{.Text.Total}}</strong></td><td><strong>{{.Total}}</strong></td></tr>
</table>
{{if .Tracking}}<p>{{.Text.Tracking}}: {{.Tracking}}</p>{{end}}
{{if .Delivery}}<p>{{.Text.Delivery}}: {{.Delivery}}</p>{{end}}
<p>{{.Text.Closing}}</p>
</body>
</html>
`))

type emailLine struct {
	Title string
	Price string
}

type emailData struct {
	Locale       string
	Text         phrases
	Intro        string
	CustomerName string
	OrderNumber  string
	Items        []emailLine
	Shipping     string
	Total        string
	Tracking     string
	Delivery     string
}

type renderedEmail struct {
	Subject string
	HTML    string
}

// render builds the subject and body for kind in locale.
func render(order *domain.Order, kind domain.NotificationKind, locale string) (renderedEmail, error) {
	text := lookup(locale)
	printer := message.NewPrinter(language.Make(locale))
	format := func(amount decimal.Decimal) string {
		digits := int(money.MinorUnitDigits(order.Currency))
		return printer.Sprint(number.Decimal(amount.InexactFloat64(), number.Scale(digits))) + " " + order.Currency
	}

	data := emailData{
		Locale:       locale,
		Text:         text,
		Intro:        text.intro(kind),
		CustomerName: order.Customer.Name,
		OrderNumber:  order.OrderNumber,
		Shipping:     format(order.Shipping),
		Total:        format(order.Total),
		Tracking:     order.TrackingNumber,
	}
	for _, item := range order.Items {
		data.Items = append(data.Items, emailLine{Title: item.Title, Price: format(item.UnitPrice)})
	}
	if days := order.ShippingMethod.EstimatedDays; days.Max > 0 && kind != domain.NotificationOrderDelivered {
		data.Delivery = fmt.Sprintf("%d-%d", days.Min, days.Max)
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return renderedEmail{}, fmt.Errorf("failed to render %s email: %w", kind, err)
	}
	return renderedEmail{
		Subject: fmt.Sprintf(text.subject(kind), order.OrderNumber),
		HTML:    buf.String(),
	}, nil
}
