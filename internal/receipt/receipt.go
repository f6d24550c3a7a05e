// Package receipt renders and stores payment receipts. Receipts are issued
// after the payment commits; a failed receipt never fails the payment.
package receipt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"condobill/internal/domain"
)

// Store persists a rendered receipt and resolves its public URL. Satisfied
// by both the S3 and the local-directory clients.
type Store interface {
	Save(ctx context.Context, fileName string, data []byte) (string, error)
	URL(ctx context.Context, savedName string) (string, error)
}

type Issuer struct {
	store Store
}

func NewIssuer(store Store) *Issuer {
	return &Issuer{store: store}
}

// Issue renders the receipt PDF, stores it and returns its URL.
func (i *Issuer) Issue(ctx context.Context, party domain.BillableParty, o domain.Obligation, p domain.Payment) (string, error) {
	data, err := Render(party, o, p)
	if err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}

	fileName := fmt.Sprintf("receipt_%s.pdf", p.ID)
	saved, err := i.store.Save(ctx, fileName, data)
	if err != nil {
		return "", fmt.Errorf("store receipt: %w", err)
	}

	url, err := i.store.URL(ctx, saved)
	if err != nil {
		return "", fmt.Errorf("resolve receipt url: %w", err)
	}
	return url, nil
}

func kindTitle(kind domain.ObligationKind) string {
	switch kind {
	case domain.KindDue:
		return "Periodic due"
	case domain.KindFine:
		return "Fine"
	default:
		return "Reservation charge"
	}
}

// Render produces the receipt PDF.
func Render(party domain.BillableParty, o domain.Obligation, p domain.Payment) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Payment receipt")
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 11)

	line := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(55, 7, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 7, value, "", 1, "L", false, 0, "")
	}

	name := strings.TrimSpace(party.FirstName + " " + party.LastName)
	line("Paid by", fmt.Sprintf("%s (doc. %s)", name, party.Document))
	line("Concept", fmt.Sprintf("%s %s", kindTitle(o.Kind), o.Label))
	if o.Period != "" {
		line("Period", o.Period)
	}
	line("Amount", p.Amount.StringFixed(2))
	line("Method", string(p.Method))
	line("Reference", p.Reference)
	line("Date", p.CreatedAt.Format("2006-01-02 15:04:05"))
	line("Payment ID", p.ID)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
