package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

const (
	TemplateOrderPaid     = "order_paid"
	TemplateOrderCanceled = "order_canceled"
)

// OrderInfo is the view of an order the customer templates render.
type OrderInfo struct {
	OrderID       string
	CustomerEmail string
	OrderDate     string
	Total         string
	DeliveryLabel string
	MusicLabel    string
	MusicLink     string
	GiftNote      string
	Message       string
	SiteURL       string
}

type emailTemplate struct {
	subject string
	html    string
	text    string
}

var orderTemplates = map[string]emailTemplate{
	TemplateOrderPaid: {
		subject: "AfroBirthday order confirmation (%s)",
		html:    orderPaidHTML,
		text:    orderPaidText,
	},
	TemplateOrderCanceled: {
		subject: "AfroBirthday payment not completed (%s)",
		html:    orderCanceledHTML,
		text:    orderCanceledText,
	},
}

// Renderer holds the parsed templates. HTML output is escaped by html/template.
type Renderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

func NewRenderer() (*Renderer, error) {
	html := htmltemplate.New("email_html")
	text := texttemplate.New("email_text")

	for name, t := range orderTemplates {
		if _, err := html.New(name).Parse(t.html); err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", name, err)
		}
		if _, err := text.New(name).Parse(t.text); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", name, err)
		}
	}

	return &Renderer{html: html, text: text}, nil
}

func (r *Renderer) Render(templateName string, data *OrderInfo) (*Email, error) {
	if data == nil {
		return nil, fmt.Errorf("order info is required")
	}
	def, ok := orderTemplates[templateName]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", templateName)
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := r.html.ExecuteTemplate(&htmlBuf, templateName, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}
	if err := r.text.ExecuteTemplate(&textBuf, templateName, data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}

	return &Email{
		To:      data.CustomerEmail,
		Subject: fmt.Sprintf(def.subject, data.OrderID),
		HTML:    htmlBuf.String(),
		Text:    textBuf.String(),
		Tag:     templateName,
	}, nil
}

const orderPaidText = `Thanks for your order!

Order ID: {{.OrderID}}
Total: ${{.Total}} USD
Delivery: {{.DeliveryLabel}}
Music: {{.MusicLabel}}
{{- if .MusicLink}}
Music link: {{.MusicLink}}
{{- end}}
{{- if .GiftNote}}
Gift note: {{.GiftNote}}
{{- end}}

Message:
{{.Message}}

We'll deliver your video by email as soon as it's ready.
`

const orderPaidHTML = `<div style="font-family: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial; line-height: 1.5; color: #111;">
  <h2 style="margin:0 0 12px;">Thanks for your order 🎂</h2>
  <p style="margin:0 0 16px;">We received your order and payment successfully.</p>

  <div style="border:1px solid #eee; border-radius:12px; padding:16px;">
    <h3 style="margin:0 0 12px;">Order details</h3>
    <p style="margin:0 0 6px;"><strong>Order ID:</strong> {{.OrderID}}</p>
    {{if .OrderDate}}<p style="margin:0 0 6px;"><strong>Date:</strong> {{.OrderDate}}</p>{{end}}
    <p style="margin:0 0 6px;"><strong>Total:</strong> ${{.Total}} USD</p>
    <p style="margin:0 0 6px;"><strong>Delivery:</strong> {{.DeliveryLabel}}</p>
    <p style="margin:0 0 6px;"><strong>Music:</strong> {{.MusicLabel}}</p>
    {{if .MusicLink}}<p style="margin:0 0 6px;"><strong>Music link:</strong> {{.MusicLink}}</p>{{end}}
    {{if .GiftNote}}<p style="margin:0 0 6px;"><strong>Gift note:</strong> {{.GiftNote}}</p>{{end}}
    <p style="margin:12px 0 0;"><strong>Message:</strong><br/>{{.Message}}</p>
  </div>

  <p style="margin:16px 0 0;">We'll deliver your video by email as soon as it's ready.</p>
  <p style="margin:16px 0 0; font-size: 12px; color: #555;">Need help? Reply to this email.</p>
</div>
`

const orderCanceledText = `Your payment was not completed.

Order ID: {{.OrderID}}
Total: ${{.Total}} USD

No charge was made. You can place a new order any time{{if .SiteURL}} at {{.SiteURL}}{{end}}.
`

const orderCanceledHTML = `<div style="font-family: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial; line-height: 1.5; color: #111;">
  <h2 style="margin:0 0 12px;">Your payment was not completed</h2>
  <p style="margin:0 0 6px;"><strong>Order ID:</strong> {{.OrderID}}</p>
  <p style="margin:0 0 16px;"><strong>Total:</strong> ${{.Total}} USD</p>
  <p style="margin:0 0 16px;">No charge was made. You can place a new order any time{{if .SiteURL}} at <a href="{{.SiteURL}}">{{.SiteURL}}</a>{{end}}.</p>
  <p style="margin:16px 0 0; font-size: 12px; color: #555;">Need help? Reply to this email.</p>
</div>
`
