package ledger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/majormartintibor/opossum/pkg/ledger"
	"github.com/stretchr/testify/require"
)

func TestGetLastOnMissingLedgerIsZero(t *testing.T) {
	l := ledger.New(t.TempDir(), false)
	require.Zero(t, l.GetLast())
	require.Equal(t, int64(1), l.GetNext())
}

func TestGetLastOnCorruptLedgerIsZero(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ledger"), []byte("not json"), 0o644))

	l := ledger.New(dir, false)
	require.Zero(t, l.GetLast())
}

func TestUpdatePersistsLastPositionAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	l := ledger.New(dir, false)

	require.NoError(t, l.Update(5))
	require.Equal(t, int64(5), l.GetLast())
	require.Equal(t, int64(6), l.GetNext())

	reopened := ledger.New(dir, false)
	require.Equal(t, int64(5), reopened.GetLast())
}

func TestReconcileAdvancesOnlyWhenHigherThanCurrent(t *testing.T) {
	dir := t.TempDir()
	l := ledger.New(dir, false)
	require.NoError(t, l.Update(3))

	require.NoError(t, l.Reconcile(2))
	require.Equal(t, int64(3), l.GetLast(), "reconcile must never move the ledger backwards")

	require.NoError(t, l.Reconcile(7))
	require.Equal(t, int64(7), l.GetLast())
}
