package identity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/medconsult/medconsult/internal/platform/apperr"
)

func openWorkbook(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err, "open workbook")
	t.Cleanup(func() { f.Close() })
	return f
}

func TestService_ExportDoctors(t *testing.T) {
	svc := newTestService()
	// More than one batch so paging is exercised.
	for i := 0; i < exportBatch+5; i++ {
		in := validDoctor()
		in.Email = fmt.Sprintf("doc%d@clinic.example", i)
		in.Phone = fmt.Sprintf("555-%04d", i)
		_, err := svc.RegisterDoctor(context.Background(), in)
		require.NoError(t, err, "register %d", i)
	}

	data, err := svc.ExportDoctors(context.Background())
	require.NoError(t, err)
	f := openWorkbook(t, data)
	rows, err := f.GetRows("Doctors")
	require.NoError(t, err)
	require.Len(t, rows, exportBatch+6, "rows including header")
	assert.Equal(t, doctorExportHeader, rows[0])
	assert.Equal(t, "Cardiology", rows[1][4])
	assert.Equal(t, []string{"Doctors"}, f.GetSheetList())
}

func TestService_ExportPatients_OmitsCredentials(t *testing.T) {
	svc := newTestService()
	svc.RegisterPatient(context.Background(), validPatient())

	data, err := svc.ExportPatients(context.Background())
	require.NoError(t, err)
	rows, err := openWorkbook(t, data).GetRows("Patients")
	require.NoError(t, err)
	require.Len(t, rows, 2, "header and one patient")
	for _, cell := range rows[1] {
		assert.False(t, strings.HasPrefix(cell, "$2"), "export leaked a password hash: %q", cell)
	}
	assert.Equal(t, "Ravi Kumar", rows[1][1])
	assert.Equal(t, "0", rows[1][7], "reply count")
}

func TestService_ExportDoctors_StoreFailure(t *testing.T) {
	svc := newTestService()
	svc.doctors.(*mockDoctorRepo).listErr = apperr.Persistence(errors.New("down"))
	_, err := svc.ExportDoctors(context.Background())
	assertKind(t, err, apperr.KindPersistence)
}

func TestHandler_ExportPatients(t *testing.T) {
	h, e, _ := newTestHandler()
	h.svc.RegisterPatient(context.Background(), validPatient())

	rec := httptest.NewRecorder()
	require.NoError(t, h.ExportPatients(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/admin/patients/export", nil), rec)))
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	cd := rec.Header().Get("Content-Disposition")
	assert.Contains(t, cd, "patients_")
	assert.Contains(t, cd, ".xlsx")
	openWorkbook(t, rec.Body.Bytes())
}
