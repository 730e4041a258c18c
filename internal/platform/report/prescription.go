// Package report renders consultation replies as printable documents.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Prescription is everything printed on one prescription sheet.
type Prescription struct {
	MessageID       string
	DoctorName      string
	DoctorSpecialty string
	PatientName     string
	PatientAge      int
	PatientEmail    string
	IllnessHistory  string
	RecentSurgery   string
	IsDiabetic      string
	Allergies       string
	Others          string
	SentAt          time.Time
	CareToBeTaken   string
	Medicines       string
	ReplyDate       time.Time
}

const (
	pageMargin = 18.0
	lineHeight = 6.0
	labelWidth = 45.0
	dateLayout = "02 Jan 2006 15:04 MST"
)

// RenderPrescription writes p as an A4 PDF to w.
func RenderPrescription(w io.Writer, p Prescription) error {
	if p.CareToBeTaken == "" && p.Medicines == "" {
		return errors.New("prescription has no reply content")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle("Prescription "+p.MessageID, true)
	pdf.SetAuthor(p.DoctorName, true)
	if !p.ReplyDate.IsZero() {
		pdf.SetCreationDate(p.ReplyDate)
	}

	// core fonts are cp1252
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-pageMargin)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, lineHeight, tr(fmt.Sprintf("Consultation %s  |  page %d", p.MessageID, pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "Prescription", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	doctor := p.DoctorName
	if p.DoctorSpecialty != "" {
		doctor += ", " + p.DoctorSpecialty
	}
	pdf.CellFormat(0, lineHeight, tr(doctor), "", 1, "L", false, 0, "")
	if !p.ReplyDate.IsZero() {
		pdf.CellFormat(0, lineHeight, tr("Issued "+p.ReplyDate.UTC().Format(dateLayout)), "", 1, "L", false, 0, "")
	}
	rule(pdf)

	section(pdf, tr, "Patient")
	field(pdf, tr, "Name", p.PatientName)
	if p.PatientAge > 0 {
		field(pdf, tr, "Age", fmt.Sprintf("%d", p.PatientAge))
	}
	field(pdf, tr, "Email", p.PatientEmail)

	section(pdf, tr, "Consultation")
	if !p.SentAt.IsZero() {
		field(pdf, tr, "Submitted", p.SentAt.UTC().Format(dateLayout))
	}
	field(pdf, tr, "Illness history", p.IllnessHistory)
	field(pdf, tr, "Recent surgery", p.RecentSurgery)
	field(pdf, tr, "Diabetic status", p.IsDiabetic)
	field(pdf, tr, "Allergies", p.Allergies)
	field(pdf, tr, "Other notes", p.Others)

	section(pdf, tr, "Care to be taken")
	body(pdf, tr, p.CareToBeTaken)

	section(pdf, tr, "Medicines")
	body(pdf, tr, p.Medicines)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render prescription: %w", err)
	}
	return nil
}

func rule(pdf *gofpdf.Fpdf) {
	pdf.Ln(2)
	pdf.SetDrawColor(180, 180, 180)
	w, _ := pdf.GetPageSize()
	y := pdf.GetY()
	pdf.Line(pageMargin, y, w-pageMargin, y)
	pdf.Ln(4)
}

func section(pdf *gofpdf.Fpdf, tr func(string) string, title string) {
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, tr(title), "", 1, "L", false, 0, "")
}

func field(pdf *gofpdf.Fpdf, tr func(string) string, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(labelWidth, lineHeight, tr(label), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, lineHeight, tr(value), "", "L", false)
}

func body(pdf *gofpdf.Fpdf, tr func(string) string, text string) {
	if strings.TrimSpace(text) == "" {
		text = "-"
	}
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, lineHeight, tr(text), "", "L", false)
}
