package collate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadGPLMetadataDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "generate_permit_list.json"), `{
		"version_str": "0.8.1",
		"velo_mode": false,
		"expected_ori": "fw"
	}`)

	m, err := loadGPLMetadata(dir)
	require.NoError(t, err)
	require.Equal(t, "0.8.1", m.VersionStr)
	require.False(t, m.VeloMode)
	require.Equal(t, "filtered", m.PermitListType)
	require.Equal(t, uint64(defaultMaxAmbigRecord), m.MaxAmbigRecord)

	s, err := m.strand()
	require.NoError(t, err)
	require.Equal(t, "forward", s.String())
}

func TestLoadGPLMetadataExplicitOptionalFields(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "generate_permit_list.json"), `{
		"version_str": "0.8.1",
		"velo_mode": true,
		"expected_ori": "rc",
		"permit-list-type": "unfiltered",
		"max-ambig-record": 1000
	}`)

	m, err := loadGPLMetadata(dir)
	require.NoError(t, err)
	require.True(t, m.VeloMode)
	require.Equal(t, "unfiltered", m.PermitListType)
	require.Equal(t, uint64(1000), m.MaxAmbigRecord)
}

func TestLoadGPLMetadataMissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "generate_permit_list.json"), `{"velo_mode": false, "expected_ori": "fw"}`)

	_, err := loadGPLMetadata(dir)
	require.Error(t, err)
	var collErr *Error
	require.ErrorAs(t, err, &collErr)
	require.Equal(t, KindMalformedMetadata, collErr.Kind)
}

func TestLoadGPLMetadataMissingFile(t *testing.T) {
	_, err := loadGPLMetadata(t.TempDir())
	require.Error(t, err)
	var collErr *Error
	require.ErrorAs(t, err, &collErr)
	require.Equal(t, KindMissingArtifact, collErr.Kind)
}

func TestCheckLegacyPermitFreq(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, checkLegacyPermitFreq(dir), "no tsv, no bin: fine")

	writeFile(t, filepath.Join(dir, "permit_freq.tsv"), "")
	err := checkLegacyPermitFreq(dir)
	require.Error(t, err)
	var collErr *Error
	require.ErrorAs(t, err, &collErr)
	require.Equal(t, KindMissingArtifact, collErr.Kind)

	writeFile(t, filepath.Join(dir, "permit_freq.bin"), "")
	require.NoError(t, checkLegacyPermitFreq(dir), "bin now present alongside legacy tsv: fine")
}

func TestOutputFileName(t *testing.T) {
	require.Equal(t, "velo.map.collated.rad", outputFileName(true, false))
	require.Equal(t, "velo.map.collated.rad", outputFileName(true, true))
	require.Equal(t, "map.collated.rad.sz", outputFileName(false, true))
	require.Equal(t, "map.collated.rad", outputFileName(false, false))
}

func TestWriteCollateJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeCollateJSON(dir, "radcollate -x", "1.2.3", true))

	data, err := os.ReadFile(filepath.Join(dir, "collate.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"cmd": "radcollate -x"`)
	require.Contains(t, string(data), `"version_str": "1.2.3"`)
	require.Contains(t, string(data), `"compressed_output": true`)
}
