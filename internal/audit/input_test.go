package audit_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fxrec/internal/audit"
)

func TestLoadCSVFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Rates.CSV")
	content := "\xef\xbb\xbfDate, Base ,Source,Rate\n2024-01-05,USD,ZAR,18.5\n,,,\n2024-01-06,USD,ZAR\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	tbl, err := audit.Load(audit.FromPath(path))
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Base", "Source", "Rate"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"2024-01-06", "USD", "ZAR", ""}, tbl.Rows[1])
}

func TestLoadWorkbookFromBytes(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Trade Date", "From", "To", "Exchange Rate"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"2024-01-05", "USD", "ZAR", 18.5}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tbl, err := audit.Load(audit.FromBytes("upload.xlsx", buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"Trade Date", "From", "To", "Exchange Rate"}, tbl.Headers)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "ZAR", tbl.Rows[0][2])
	assert.Equal(t, "18.5", tbl.Rows[0][3])
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	_, err := audit.Load(audit.FromBytes("rates.xls", []byte{0xd0, 0xcf}))
	assert.ErrorIs(t, err, audit.ErrUnsupportedFile)
}

func TestSourceDispatchUsesDeclaredName(t *testing.T) {
	src := audit.FromBytes("Q1 Upload.XLSX", nil)
	assert.Equal(t, ".xlsx", src.Ext())
	assert.Equal(t, "Q1 Upload.XLSX", src.Name())
}
