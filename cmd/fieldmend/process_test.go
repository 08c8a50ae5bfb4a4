package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInvoiceYAML = `id: INV-1001
vendor: Parts AG
fields:
  invoice_number: "2024-001"
  invoice_date: "2024-01-15"
  service_date: "2024-01-10"
  currency: EUR
  net_total: 100.0
  tax_rate: 0.19
confidence: 0.9
raw_text: |
  Rechnung 2024-001
  Alle Preise inkl. MwSt.
`

func withTestDatabase(t *testing.T) {
	t.Helper()
	viper.Set("database.path", filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(viper.Reset)
}

func TestRunProcessSingleInvoice(t *testing.T) {
	withTestDatabase(t)

	invoicePath := filepath.Join(t.TempDir(), "invoice.yaml")
	require.NoError(t, os.WriteFile(invoicePath, []byte(testInvoiceYAML), 0600))

	cmd := processCmd()
	cmd.SetContext(context.Background())
	require.NoError(t, runProcess(cmd, []string{invoicePath}))
}

func TestRunProcessRequiresInput(t *testing.T) {
	withTestDatabase(t)

	cmd := processCmd()
	cmd.SetContext(context.Background())
	err := runProcess(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--dir")
}

func TestRunProcessDirectory(t *testing.T) {
	withTestDatabase(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(testInvoiceYAML), 0600))

	cmd := processCmd()
	cmd.SetContext(context.Background())
	require.NoError(t, cmd.Flags().Set("dir", dir))
	require.NoError(t, runProcess(cmd, nil))
}

func TestDisplayValue(t *testing.T) {
	assert.Equal(t, "-", displayValue(nil))
	assert.Equal(t, "EUR", displayValue("EUR"))
	assert.Equal(t, 19.0, displayValue(19.0))
}

func TestFormatLastUsed(t *testing.T) {
	assert.Equal(t, "never", formatLastUsed(nil))
	ts := time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-20", formatLastUsed(&ts))
}
