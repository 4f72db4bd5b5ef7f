package bankledger

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"
)

const statementTimeLayout = "2006-01-02 15:04:05"

// RenderStatement writes a PDF listing every movement on acct, oldest first,
// from the account's own point of view.
func RenderStatement(w io.Writer, acct Account, hist []History, generatedAt time.Time) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Account statement "+acct.Number, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Account statement")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, "Account: "+acct.Number)
	pdf.Ln(6)
	pdf.Cell(0, 6, "Current balance: "+strconv.FormatInt(acct.Balance, 10))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Generated: "+generatedAt.UTC().Format(statementTimeLayout)+" UTC")
	pdf.Ln(10)

	widths := []float64{45, 30, 35, 35, 35}
	headers := []string{"Date", "Type", "Out", "In", "Balance"}
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, h := range hist {
		bal, outgoing, ok := h.BalanceAfter(acct.ID)
		if !ok {
			continue
		}
		amt := strconv.FormatInt(h.Amount, 10)
		out, in := "", amt
		if outgoing {
			out, in = amt, ""
		}
		cells := []string{
			h.CreatedAt.UTC().Format(statementTimeLayout),
			string(h.Kind()),
			out,
			in,
			strconv.FormatInt(bal, 10),
		}
		for i, c := range cells {
			align := "R"
			if i < 2 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 6, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render statement: %w", err)
	}
	return nil
}
