package registrations

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ikatan-anggota/backend/internal/models"
)

const (
	// RosterSheet is the worksheet name of a roster export.
	RosterSheet = "Peserta"
	// SpreadsheetContentType is the MIME type of exported workbooks.
	SpreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	emptyCell  = "-"
	dateLayout = "02-01-2006 15:04"
)

var rosterHeader = []interface{}{
	"No", "Judul Pelatihan", "Nama", "No Identitas", "Institusi", "Email",
	"Nomor WA", "Wilayah", "Kode", "Status Kirim", "Waktu Daftar", "Waktu Selesai",
}

// wib is Western Indonesian Time, the zone dates are shown in.
var wib = time.FixedZone("WIB", 7*60*60)

// ExportFileName is the download name of a training's roster.
func ExportFileName(trainingID int64) string {
	return fmt.Sprintf("peserta-pelatihan-%d.xlsx", trainingID)
}

// BuildRosterWorkbook renders rows into an xlsx workbook.
func BuildRosterWorkbook(rows []models.RosterRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", RosterSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(RosterSheet, "A1", &rosterHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	last, _ := excelize.ColumnNumberToName(len(rosterHeader))
	if err := f.SetCellStyle(RosterSheet, "A1", last+"1", bold); err != nil {
		return nil, fmt.Errorf("apply header style: %w", err)
	}
	if err := f.SetColWidth(RosterSheet, "B", last, 22); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		sent := "Belum dikirim"
		if r.Sent {
			sent = "Terkirim"
		}
		completed := emptyCell
		if r.CompletedAt != nil {
			completed = r.CompletedAt.In(wib).Format(dateLayout)
		}
		values := []interface{}{
			i + 1,
			orEmpty(r.TrainingTitle),
			orEmpty(r.MemberName),
			orEmpty(r.IdentityNo),
			orEmpty(r.Institution),
			orEmpty(r.Email),
			orEmpty(r.Phone),
			orEmpty(r.Region),
			orEmpty(r.Code),
			sent,
			r.RegisteredAt.In(wib).Format(dateLayout),
			completed,
		}
		if err := f.SetSheetRow(RosterSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func orEmpty(s string) string {
	if s == "" {
		return emptyCell
	}
	return s
}
