package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestNewValidates(t *testing.T) {
	_, err := New([]string{"a"}, [][]float64{{1}}, []int{0, 1})
	assert.Error(t, err)

	_, err = New([]string{"a"}, [][]float64{{1, 2}}, []int{0})
	assert.Error(t, err)

	_, err = New([]string{"a"}, [][]float64{{1}}, []int{2})
	assert.Error(t, err)
}

func TestSplitModellingHoldoutIsDisjointChunk(t *testing.T) {
	x := make([][]float64, 10)
	y := make([]int, 10)

	for i := range x {
		x[i] = []float64{float64(i)}
		y[i] = i % 2
	}

	table, err := New([]string{"i"}, x, y)
	require.NoError(t, err)

	modelling, holdout, err := table.SplitModellingHoldout(0.8)
	require.NoError(t, err)

	assert.Equal(t, 8, modelling.Len())
	assert.Equal(t, 2, holdout.Len())
	assert.Equal(t, 7.0, modelling.X[7][0])
	assert.Equal(t, 8.0, holdout.X[0][0])

	_, _, err = table.SplitModellingHoldout(0)
	assert.Error(t, err)
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	content := "age,fare,survived\n22,7.25,0\n38,71.28,1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := Load(path, "survived", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"age", "fare"}, table.Features)
	assert.Equal(t, [][]float64{{22, 7.25}, {38, 71.28}}, table.X)
	assert.Equal(t, []int{0, 1}, table.Y)
	assert.Equal(t, map[int]int{0: 1, 1: 1}, table.LabelCounts())
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"fare", "age", "survived"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{7.25, 22, 0}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{71.5, 38, 1}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, err := Load(path, "survived", []string{"age"})
	require.NoError(t, err)

	assert.Equal(t, []string{"age"}, table.Features)
	assert.Equal(t, [][]float64{{22}, {38}}, table.X)
	assert.Equal(t, []int{0, 1}, table.Y)
}

func TestFromRecordsErrors(t *testing.T) {
	_, err := FromRecords([][]string{{"a", "y"}}, "y", nil)
	assert.Error(t, err)

	_, err = FromRecords([][]string{{"a", "y"}, {"1", "0"}}, "target", nil)
	assert.Error(t, err)

	_, err = FromRecords([][]string{{"a", "y"}, {"x", "0"}}, "y", nil)
	assert.Error(t, err)

	_, err = Load("data.parquet", "y", nil)
	assert.Error(t, err)
}

func TestLoadWithoutTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	content := "age,fare\n22,7.25\n38,71.28\n54,51.86\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := Load(path, "survived", []string{"fare", "age"})
	assert.ErrorIs(t, err, ErrTargetNotFound)

	table, err := Load(path, "", []string{"fare", "age"})
	require.NoError(t, err)

	assert.False(t, table.Labelled())
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, []float64{71.28, 38}, table.X[1])

	sub := table.Subset([]int{2, 0})
	assert.False(t, sub.Labelled())
	assert.Equal(t, [][]float64{{51.86, 54}, {7.25, 22}}, sub.X)
}
