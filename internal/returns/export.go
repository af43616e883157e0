package returns

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tealeg/xlsx"

	"github.com/hitoshi/bijou/internal/auth"
	"github.com/hitoshi/bijou/internal/model"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var exportHeaders = []string{
	"ID", "Sipariş", "Müşteri", "E-posta", "Durum", "Sebep", "Ürünler",
	"İade Tutarı", "Sipariş Tutarı", "Takip No", "Yönetici Notu", "Oluşturma", "İşlem",
}

// AdminExportReturns は返品申請一覧をxlsx形式でwに書き出す。管理者以外はForbidden。
func (s *Service) AdminExportReturns(ctx context.Context, requester auth.Principal, status model.ReturnStatus, w io.Writer) error {
	list, err := s.AdminListReturns(ctx, requester, status)
	if err != nil {
		return err
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Iadeler")
	if err != nil {
		return fmt.Errorf("シートの作成に失敗しました: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range exportHeaders {
		header.AddCell().SetValue(h)
	}

	for _, rr := range list {
		row := sheet.AddRow()
		row.AddCell().SetValue(rr.ID)
		row.AddCell().SetValue(rr.OrderID)
		row.AddCell().SetValue(rr.UserName)
		row.AddCell().SetValue(rr.UserEmail)
		row.AddCell().SetValue(string(rr.Status))
		row.AddCell().SetValue(string(rr.Reason))
		row.AddCell().SetValue(itemSummary(rr.Items))
		row.AddCell().SetValue(rr.RefundAmount.StringFixed(2))
		row.AddCell().SetValue(rr.OrderTotal.StringFixed(2))
		row.AddCell().SetValue(rr.TrackingNumber)
		row.AddCell().SetValue(rr.AdminNotes)
		row.AddCell().SetValue(rr.CreatedAt.Format(exportTimeLayout))
		processed := ""
		if rr.ProcessedAt != nil {
			processed = rr.ProcessedAt.Format(exportTimeLayout)
		}
		row.AddCell().SetValue(processed)
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("xlsxの書き出しに失敗しました: %w", err)
	}
	return nil
}

func itemSummary(items []model.ReturnItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s x%d", it.Name, it.Quantity))
	}
	return strings.Join(parts, ", ")
}
