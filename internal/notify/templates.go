package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

const brand = "Géant Casino"

var pages = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html><html><body>
<h2>Confirmation commande {{.OrderNumber}}</h2>
<p>Bonjour {{.CustomerName}},</p>
<ul>{{range .Items}}<li>{{.Name}} ×{{.Quantity}} - {{.Subtotal}}</li>{{end}}</ul>
<p>Total: {{.Total}}</p>
<p>Code retrait temporaire: <b>{{.Code}}</b></p>
<p>Retrait: {{.PickupDate}} {{.PickupTime}}</p>
</body></html>`))

func init() {
	template.Must(pages.New("final_code").Parse(`<!DOCTYPE html><html><body>
<p>Commande {{.OrderNumber}}</p>
<p>Votre code final: <b>{{.Code}}</b></p>
<p>Présentez ce code en caisse pour retirer votre commande.</p>
</body></html>`))
	template.Must(pages.New("low_stock").Parse(`<!DOCTYPE html><html><body>
<p>Le stock de <b>{{.Name}}</b> ({{.SKU}}) est bas: {{.Stock}} (seuil {{.Threshold}}).</p>
</body></html>`))
}

type receiptLine struct {
	Name     string
	Quantity int
	Subtotal string
}

type orderView struct {
	OrderNumber  string
	CustomerName string
	Items        []receiptLine
	Total        string
	Code         string
	PickupDate   string
	PickupTime   string
}

func money(d decimal.Decimal) string { return d.StringFixed(2) + " FCFA" }

func viewOf(o orders.Order, code string) orderView {
	v := orderView{
		OrderNumber:  o.OrderNumber,
		CustomerName: o.CustomerName,
		Total:        money(o.Amount),
		Code:         code,
		PickupDate:   o.CreatedAt.Format("2006-01-02"),
		PickupTime:   "À définir",
	}
	if v.Code == "" {
		v.Code = "N/A"
	}
	if s := o.PickupSlot; s != nil {
		v.PickupDate = s.Date.Format("2006-01-02")
		if s.TimeFrom != "" {
			v.PickupTime = s.TimeFrom + " - " + s.TimeTo
		}
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, receiptLine{Name: it.ProductName, Quantity: it.Quantity, Subtotal: money(it.Subtotal)})
	}
	return v
}

func render(name string, data any) (string, error) {
	var b bytes.Buffer
	if err := pages.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return b.String(), nil
}

// Message is one rendered notification.
type Message struct {
	Subject string
	HTML    string
	SMS     string
}

// Confirmation is sent when payment lands and carries the temporary code.
func Confirmation(o orders.Order) (Message, error) {
	html, err := render("confirmation", viewOf(o, o.TempPickupCode))
	if err != nil {
		return Message{}, err
	}
	return Message{
		Subject: "Confirmation de votre commande " + o.OrderNumber,
		HTML:    html,
		SMS:     confirmationSMS(o),
	}, nil
}

// Receipt re-sends the confirmation content under a receipt subject.
func Receipt(o orders.Order) (Message, error) {
	m, err := Confirmation(o)
	if err != nil {
		return Message{}, err
	}
	m.Subject = "Reçu de votre commande " + o.OrderNumber
	return m, nil
}

func confirmationSMS(o orders.Order) string {
	code := o.TempPickupCode
	if code == "" {
		code = "N/A"
	}
	return fmt.Sprintf("%s: Commande %s confirmée. Code retrait: %s. À bientôt!", brand, o.OrderNumber, code)
}

func FinalCode(o orders.Order) (Message, error) {
	html, err := render("final_code", viewOf(o, o.FinalPickupCode))
	if err != nil {
		return Message{}, err
	}
	return Message{
		Subject: "Code retrait final pour votre commande " + o.OrderNumber,
		HTML:    html,
		SMS:     fmt.Sprintf("Code final pour %s: %s", o.OrderNumber, o.FinalPickupCode),
	}, nil
}

func LowStock(p orders.Product, threshold int) (Message, error) {
	html, err := render("low_stock", struct {
		Name, SKU        string
		Stock, Threshold int
	}{p.Name, p.SKU, p.Stock, threshold})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Subject: "Alerte stock faible: " + p.Name,
		HTML:    html,
	}, nil
}
