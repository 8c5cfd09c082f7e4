package recorder

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportSessionXLSX writes a session's trade ledger to an xlsx workbook with
// a summary sheet and one row per filled order.
func ExportSessionXLSX(path string, session *TradingSession, trades []TradeRecord) error {
	fx := excelize.NewFile()
	defer fx.Close()

	const summarySheet = "Summary"
	const tradesSheet = "Trades"

	fx.SetSheetName("Sheet1", summarySheet)
	if _, err := fx.NewSheet(tradesSheet); err != nil {
		return fmt.Errorf("failed to create trades sheet: %w", err)
	}

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDDDDD"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	summary := [][]interface{}{
		{"Session ID", session.SessionID},
		{"Strategy", session.StrategyName},
		{"Started", session.StartTime.Format("2006-01-02 15:04:05")},
		{"Status", string(session.Status)},
		{"Initial Balance", session.InitialBalance},
		{"Final Balance", session.CurrentBalance},
		{"Total P&L", session.TotalPnL},
		{"Trades", session.TradeCount},
	}
	if session.EndTime != nil {
		summary = append(summary, []interface{}{"Ended", session.EndTime.Format("2006-01-02 15:04:05")})
	}
	for i, row := range summary {
		cell := fmt.Sprintf("A%d", i+1)
		if err := fx.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	_ = fx.SetColWidth(summarySheet, "A", "A", 18)
	_ = fx.SetColWidth(summarySheet, "B", "B", 40)

	header := []interface{}{"Time", "Symbol", "Side", "Quantity", "Price", "Notional", "Fee", "Order ID"}
	if err := fx.SetSheetRow(tradesSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write trades header: %w", err)
	}
	_ = fx.SetCellStyle(tradesSheet, "A1", "H1", headerStyle)
	_ = fx.SetColWidth(tradesSheet, "A", "A", 20)
	_ = fx.SetColWidth(tradesSheet, "H", "H", 38)

	for i, t := range trades {
		row := []interface{}{
			t.Timestamp.Format("2006-01-02 15:04:05"),
			t.Symbol,
			t.Side,
			t.Quantity,
			t.Price,
			t.Quantity * t.Price,
			t.Fee,
			t.OrderID,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := fx.SetSheetRow(tradesSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write trade row %d: %w", i, err)
		}
	}

	if err := fx.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
