package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshnet-sim/internal/domain"
)

const full = `
source: test fit
ou_kappa: 2.8
ou_sigma: 0.049
s2r_logistic_l: 1.5
s2r_logistic_k: 0.7
s2r_logistic_t0: 28
benchmark_gini: 0.85
benchmark_top1_share: 0.3
`

func TestParse(t *testing.T) {
	cal, err := Parse([]byte(full))
	require.NoError(t, err)

	want := domain.DefaultCalibration()
	want.Source = "test fit"
	assert.Equal(t, want, cal)
}

func TestParse_MissingField(t *testing.T) {
	_, err := Parse([]byte("ou_kappa: 2.8\nou_sigma: 0.049\n"))
	require.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "s2r_logistic_l")
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(full + "ou_sigma: -1\n"))
	assert.Error(t, err)

	bad := `
ou_kappa: 2.8
ou_sigma: 0.049
s2r_logistic_l: 0
s2r_logistic_k: 0.7
s2r_logistic_t0: 28
benchmark_gini: 0.85
benchmark_top1_share: 0.3
`
	_, err = Parse([]byte(bad))
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ou_kappa: 1\nou_sigma: 0.01\ns2r_logistic_l: 1\ns2r_logistic_k: 1\ns2r_logistic_t0: 1\nbenchmark_gini: 0.5\nbenchmark_top1_share: 0.1\n"), 0o644))

	cal, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cal.Source)
	assert.Equal(t, 1.0, cal.OUKappa)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_RepositoryFile(t *testing.T) {
	cal, err := Load(filepath.Join("..", "..", "configs", "calibration.yaml"))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCalibration().OUKappa, cal.OUKappa)
}
