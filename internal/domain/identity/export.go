package identity

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// exportBatch is the page size used when walking a full directory.
const exportBatch = 100

var doctorExportHeader = []string{
	"ID", "Name", "Email", "Phone", "Specialty", "Years of Experience", "Profile Picture", "Registered",
}

var patientExportHeader = []string{
	"ID", "Name", "Age", "Email", "Phone", "History of Surgery", "History of Illness", "Replies", "Registered",
}

var exportColumnWidths = []float64{38, 24, 30, 18, 24, 20, 30, 12, 20}

func (s *Service) ExportDoctors(ctx context.Context) ([]byte, error) {
	var rows [][]interface{}
	for offset := 0; ; offset += exportBatch {
		page, total, err := s.doctors.List(ctx, exportBatch, offset)
		if err != nil {
			return nil, err
		}
		for _, d := range page {
			rows = append(rows, []interface{}{
				d.ID.String(), d.Name, d.Email, d.Phone, d.Specialty, d.YearsOfExperience, d.ProfilePicture, d.CreatedAt,
			})
		}
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}
	return writeWorkbook("Doctors", doctorExportHeader, rows)
}

// ExportPatients writes the patient directory. Reply contents are not
// exported, only their count.
func (s *Service) ExportPatients(ctx context.Context) ([]byte, error) {
	var rows [][]interface{}
	for offset := 0; ; offset += exportBatch {
		page, total, err := s.patients.List(ctx, exportBatch, offset)
		if err != nil {
			return nil, err
		}
		for _, p := range page {
			rows = append(rows, []interface{}{
				p.ID.String(), p.Name, p.Age, p.Email, p.Phone, p.HistoryOfSurgery, p.HistoryOfIllness, len(p.Replies), p.CreatedAt,
			})
		}
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}
	return writeWorkbook("Patients", patientExportHeader, rows)
}

func writeWorkbook(sheetName string, headers []string, rows [][]interface{}) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if col < len(exportColumnWidths) {
			if err := f.SetColWidth(sheetName, name, name, exportColumnWidths[col]); err != nil {
				return nil, fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	for i, row := range rows {
		for col, value := range row {
			if t, ok := value.(time.Time); ok {
				value = t.UTC().Format("2006-01-02 15:04:05")
			}
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
