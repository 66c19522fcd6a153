// internal/pkg/pdf/service.go
package pdf

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/domain/order"
)

// Service handles PDF generation
type Service struct {
	config *config.Config
}

// NewService creates a new PDF service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
	}
}

// GenerateInvoice generates a PDF invoice for an order
func (s *Service) GenerateInvoice(ord *order.Order) (*bytes.Buffer, error) {
	htmlContent, err := s.generateHTML(s.buildInvoiceData(ord))
	if err != nil {
		return nil, fmt.Errorf("failed to generate HTML: %w", err)
	}

	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF generator: %w", err)
	}

	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationPortrait)
	pdfg.Grayscale.Set(false)

	page := wkhtmltopdf.NewPageReader(bytes.NewReader([]byte(htmlContent)))
	page.FooterRight.Set("[page]")
	page.FooterFontSize.Set(9)
	page.Zoom.Set(0.95)

	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create PDF: %w", err)
	}

	return bytes.NewBuffer(pdfg.Bytes()), nil
}

// buildInvoiceData precomputes every display value so the template stays
// free of arithmetic
func (s *Service) buildInvoiceData(ord *order.Order) InvoiceData {
	paymentStatus := string(order.PaymentStatusPending)
	if ord.Payment != nil {
		paymentStatus = string(ord.Payment.Status)
	}

	items := make([]InvoiceLine, 0, len(ord.Items))
	for _, item := range ord.Items {
		items = append(items, InvoiceLine{
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			UnitPrice: FormatAmount(item.UnitPrice),
			LineTotal: FormatAmount(item.LineTotal),
		})
	}

	return InvoiceData{
		InvoiceNumber:   fmt.Sprintf("INV-%s", ord.OrderNumber),
		InvoiceDate:     time.Now().Format("January 2, 2006"),
		OrderNumber:     ord.OrderNumber,
		OrderDate:       ord.CreatedAt.Format("January 2, 2006"),
		OrderStatus:     string(ord.Status),
		PaymentStatus:   paymentStatus,
		PaymentMethod:   ord.PaymentMethod.DisplayName(),
		CustomerName:    ord.ShippingFullName,
		CustomerPhone:   ord.ShippingPhone,
		ShippingAddress: ord.ShippingAddress,
		Items:           items,
		Subtotal:        FormatAmount(ord.Subtotal),
		Total:           FormatAmount(ord.TotalAmount),
		Shop: ShopInfo{
			Name:  s.config.App.Name,
			Email: s.config.External.Email.FromEmail,
		},
	}
}

// generateHTML generates HTML content from the invoice template
func (s *Service) generateHTML(data InvoiceData) (string, error) {
	tmpl := template.Must(template.New("invoice").Parse(invoiceTemplate))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// FormatAmount renders a whole-unit amount with thousands separators
func FormatAmount(amount int64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	digits := fmt.Sprintf("%d", amount)
	var buf bytes.Buffer
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			buf.WriteByte(',')
		}
		buf.WriteRune(d)
	}

	out := buf.String() + " ₫"
	if negative {
		out = "-" + out
	}
	return out
}

// InvoiceData represents the data passed to the invoice template
type InvoiceData struct {
	InvoiceNumber   string
	InvoiceDate     string
	OrderNumber     string
	OrderDate       string
	OrderStatus     string
	PaymentStatus   string
	PaymentMethod   string
	CustomerName    string
	CustomerPhone   string
	ShippingAddress string
	Items           []InvoiceLine
	Subtotal        string
	Total           string
	Shop            ShopInfo
}

// InvoiceLine is a single rendered invoice row
type InvoiceLine struct {
	Name      string
	Quantity  int
	UnitPrice string
	LineTotal string
}

// ShopInfo represents the issuing shop
type ShopInfo struct {
	Name  string
	Email string
}

// Invoice HTML template
const invoiceTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Invoice {{.InvoiceNumber}}</title>
    <style>
        body {
            font-family: Arial, sans-serif;
            margin: 0;
            padding: 20px;
            color: #333;
        }
        .header {
            display: flex;
            justify-content: space-between;
            margin-bottom: 30px;
            border-bottom: 2px solid #eee;
            padding-bottom: 20px;
        }
        .shop-info {
            flex: 1;
        }
        .invoice-info {
            text-align: right;
            flex: 1;
        }
        .invoice-title {
            font-size: 28px;
            font-weight: bold;
            color: #be185d;
            margin-bottom: 10px;
        }
        .invoice-details {
            margin-bottom: 30px;
        }
        .invoice-details table {
            width: 100%;
        }
        .invoice-details td {
            padding: 5px 0;
            vertical-align: top;
        }
        .invoice-details .label {
            font-weight: bold;
            width: 150px;
        }
        .shipping-info {
            margin-bottom: 30px;
        }
        .section-title {
            font-size: 16px;
            font-weight: bold;
            margin-bottom: 10px;
            color: #374151;
        }
        .items-table {
            width: 100%;
            border-collapse: collapse;
            margin-bottom: 30px;
        }
        .items-table th,
        .items-table td {
            border: 1px solid #ddd;
            padding: 12px 8px;
            text-align: left;
        }
        .items-table th {
            background-color: #f8f9fa;
            font-weight: bold;
        }
        .items-table .qty-col,
        .items-table .price-col,
        .items-table .total-col {
            text-align: right;
            width: 110px;
        }
        .totals {
            float: right;
            width: 300px;
        }
        .totals table {
            width: 100%;
            border-collapse: collapse;
        }
        .totals td {
            padding: 8px;
            border-bottom: 1px solid #eee;
        }
        .totals .label {
            text-align: right;
            font-weight: bold;
        }
        .totals .amount {
            text-align: right;
            width: 130px;
        }
        .total-row {
            font-size: 18px;
            font-weight: bold;
            border-top: 2px solid #333 !important;
        }
        .footer {
            margin-top: 50px;
            padding-top: 20px;
            border-top: 1px solid #eee;
            text-align: center;
            color: #666;
            font-size: 12px;
        }
        .status-badge {
            display: inline-block;
            padding: 4px 8px;
            border-radius: 4px;
            font-size: 12px;
            font-weight: bold;
            text-transform: uppercase;
        }
        .status-paid {
            background-color: #dcfce7;
            color: #166534;
        }
        .status-pending {
            background-color: #fef3c7;
            color: #92400e;
        }
    </style>
</head>
<body>
    <div class="header">
        <div class="shop-info">
            <h1>{{.Shop.Name}}</h1>
            <p>Email: {{.Shop.Email}}</p>
        </div>
        <div class="invoice-info">
            <div class="invoice-title">INVOICE</div>
            <p><strong>Invoice #:</strong> {{.InvoiceNumber}}</p>
            <p><strong>Invoice Date:</strong> {{.InvoiceDate}}</p>
            <p><strong>Order #:</strong> {{.OrderNumber}}</p>
        </div>
    </div>

    <div class="invoice-details">
        <table>
            <tr>
                <td class="label">Order Date:</td>
                <td>{{.OrderDate}}</td>
                <td class="label" style="text-align: right;">Payment Status:</td>
                <td style="text-align: right;">
                    <span class="status-badge {{if eq .PaymentStatus "paid"}}status-paid{{else}}status-pending{{end}}">
                        {{.PaymentStatus}}
                    </span>
                </td>
            </tr>
            <tr>
                <td class="label">Order Status:</td>
                <td>{{.OrderStatus}}</td>
                <td class="label" style="text-align: right;">Payment Method:</td>
                <td style="text-align: right;">{{.PaymentMethod}}</td>
            </tr>
        </table>
    </div>

    <div class="shipping-info">
        <div class="section-title">Ship To:</div>
        <p><strong>{{.CustomerName}}</strong></p>
        <p>{{.ShippingAddress}}</p>
        <p>Phone: {{.CustomerPhone}}</p>
    </div>

    <table class="items-table">
        <thead>
            <tr>
                <th>Item</th>
                <th class="qty-col">Qty</th>
                <th class="price-col">Price</th>
                <th class="total-col">Total</th>
            </tr>
        </thead>
        <tbody>
            {{range .Items}}
            <tr>
                <td><strong>{{.Name}}</strong></td>
                <td class="qty-col">{{.Quantity}}</td>
                <td class="price-col">{{.UnitPrice}}</td>
                <td class="total-col">{{.LineTotal}}</td>
            </tr>
            {{end}}
        </tbody>
    </table>

    <div class="totals">
        <table>
            <tr>
                <td class="label">Subtotal:</td>
                <td class="amount">{{.Subtotal}}</td>
            </tr>
            <tr class="total-row">
                <td class="label">Total:</td>
                <td class="amount">{{.Total}}</td>
            </tr>
        </table>
    </div>

    <div style="clear: both;"></div>

    <div class="footer">
        <p>Thank you for your order!</p>
        <p>If you have any questions about this invoice, please contact us at {{.Shop.Email}}</p>
    </div>
</body>
</html>
`
