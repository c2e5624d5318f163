package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/money"
	"deleonpos/backend/internal/store"
)

const receiptWidth = 32

// BuildInvoice renders an order, or one of its split bills, as printable text and
// as an ESC/POS byte stream for thermal printers.
func (s *Service) BuildInvoice(ctx context.Context, req domain.InvoiceRequest) (domain.InvoiceResponse, error) {
	_, tenantID, err := s.scope(ctx, "")
	if err != nil {
		return domain.InvoiceResponse{}, err
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	if err := s.check(req); err != nil {
		return domain.InvoiceResponse{}, err
	}
	order, err := s.repo.GetOrder(ctx, tenantID, req.OrderID)
	if err != nil {
		return domain.InvoiceResponse{}, err
	}
	tenantName := tenantID
	rnc := ""
	if tenant, err := s.repo.GetTenant(ctx, tenantID); err == nil {
		tenantName, rnc = tenant.Name, tenant.RNC
	}

	lines := []string{center(tenantName)}
	if rnc != "" {
		lines = append(lines, center("RNC "+rnc))
	}
	lines = append(lines,
		strings.Repeat("=", receiptWidth),
		"Orden: "+order.ID,
		"Fecha: "+order.CreatedAt.In(s.loc).Format("2006-01-02 15:04"),
	)
	if order.TableID != "" {
		lines = append(lines, "Mesa: "+order.TableID)
	}
	if order.NCF != "" {
		lines = append(lines, "NCF: "+order.NCF)
	}
	lines = append(lines, strings.Repeat("-", receiptWidth))

	fileName := fmt.Sprintf("factura-%s.bin", order.ID)
	if splitID := strings.TrimSpace(req.SplitBillID); splitID != "" {
		bill, err := s.findSplitBill(ctx, tenantID, order.ID, splitID)
		if err != nil {
			return domain.InvoiceResponse{}, err
		}
		lines = append(lines, "Cuenta: "+bill.AccountName)
		for _, line := range bill.Lines {
			lines = append(lines, fmt.Sprintf("%s x%d", line.Name, line.Qty), amountRow("", line.Amount))
		}
		lines = append(lines,
			strings.Repeat("-", receiptWidth),
			amountRow("Subtotal", bill.Subtotal),
			"ITBIS y propina pendientes",
			amountRow("Total", bill.Total),
		)
		fileName = fmt.Sprintf("factura-%s-%s.bin", order.ID, bill.AccountID)
	} else {
		for _, line := range order.Items {
			lines = append(lines, fmt.Sprintf("%s x%d", line.Name, line.Qty), amountRow("", float64(line.Qty)*line.UnitPrice))
		}
		lines = append(lines,
			strings.Repeat("-", receiptWidth),
			amountRow("Subtotal", order.Bill.Subtotal),
			amountRow("Descuento", order.Bill.Discount),
			amountRow("ITBIS", order.Bill.Tax),
			amountRow("Propina", order.Bill.Tip),
			amountRow("Total", order.Bill.Total),
		)
		if order.PaymentMethod != "" {
			lines = append(lines, "Pago: "+order.PaymentMethod)
		}
	}
	lines = append(lines, strings.Repeat("=", receiptWidth), center("Gracias por su visita"), "")

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.InvoiceResponse{
		OrderID:      order.ID,
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		PreviewText:  strings.Join(lines, "\n"),
		FileName:     fileName,
	}, nil
}

func (s *Service) findSplitBill(ctx context.Context, tenantID, orderID, splitID string) (domain.SplitBill, error) {
	bills, err := s.repo.ListSplitBills(ctx, tenantID, orderID)
	if err != nil {
		return domain.SplitBill{}, err
	}
	for _, bill := range bills {
		if bill.ID == splitID || bill.AccountID == splitID {
			return bill, nil
		}
	}
	return domain.SplitBill{}, fmt.Errorf("%w: split bill %s", store.ErrNotFound, splitID)
}

func amountRow(label string, amount float64) string {
	value := "RD$" + money.Format(amount)
	pad := receiptWidth - len(label) - len(value)
	if pad < 1 {
		pad = 1
	}
	return label + strings.Repeat(" ", pad) + value
}

func center(text string) string {
	if len(text) >= receiptWidth {
		return text
	}
	return strings.Repeat(" ", (receiptWidth-len(text))/2) + text
}
