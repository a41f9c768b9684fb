package collate

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/combine-lab/radcollate/encoding/rad"
)

const defaultMaxAmbigRecord = 2500

// gplMetadata is the subset of generate_permit_list.json this core reads
// (spec §4.8).
type gplMetadata struct {
	VersionStr     string `json:"version_str"`
	VeloMode       bool   `json:"velo_mode"`
	ExpectedOri    string `json:"expected_ori"`
	PermitListType string `json:"permit-list-type"`
	MaxAmbigRecord uint64 `json:"max-ambig-record"`
}

// loadGPLMetadata reads and validates generate_permit_list.json, applying
// the documented defaults for its two optional fields (spec §4.8).
func loadGPLMetadata(inputDir string) (*gplMetadata, error) {
	path := filepath.Join(inputDir, "generate_permit_list.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newErr(KindMissingArtifact, path, "generate_permit_list.json not found", err)
		}
		return nil, newErr(KindIOError, path, "read generate_permit_list.json", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newErr(KindMalformedMetadata, path, "parse generate_permit_list.json", err)
	}

	m := &gplMetadata{
		PermitListType: "filtered",
		MaxAmbigRecord: defaultMaxAmbigRecord,
	}

	vs, ok := raw["version_str"].(string)
	if !ok {
		return nil, newErr(KindMalformedMetadata, path, "version_str field missing or not a string", nil)
	}
	m.VersionStr = vs

	velo, ok := raw["velo_mode"].(bool)
	if !ok {
		return nil, newErr(KindMalformedMetadata, path, "velo_mode field missing or not a bool", nil)
	}
	m.VeloMode = velo

	ori, ok := raw["expected_ori"].(string)
	if !ok || ori == "" {
		return nil, newErr(KindMalformedMetadata, path, "expected_ori field missing or not a string", nil)
	}
	m.ExpectedOri = ori

	if v, ok := raw["permit-list-type"]; ok {
		if s, ok := v.(string); ok && (s == "filtered" || s == "unfiltered") {
			m.PermitListType = s
		}
	}
	if v, ok := raw["max-ambig-record"]; ok {
		if f, ok := v.(float64); ok {
			m.MaxAmbigRecord = uint64(f)
		}
	}

	return m, nil
}

// strand resolves the metadata's expected_ori string to a rad.Strand.
func (m *gplMetadata) strand() (rad.Strand, error) {
	return rad.ParseStrand(m.ExpectedOri[0])
}

// checkLegacyPermitFreq implements SPEC_FULL.md's legacy-file guard: a
// permit_freq.tsv with no accompanying permit_freq.bin means the upstream
// stage needs to be rerun with a newer version.
func checkLegacyPermitFreq(inputDir string) error {
	tsvPath := filepath.Join(inputDir, "permit_freq.tsv")
	binPath := filepath.Join(inputDir, "permit_freq.bin")
	if _, err := os.Stat(tsvPath); err == nil {
		if _, err := os.Stat(binPath); os.IsNotExist(err) {
			return newErr(KindMissingArtifact, binPath,
				"found legacy permit_freq.tsv but no permit_freq.bin; rerun generate-permit-list with a newer version", nil)
		}
	}
	return nil
}

// collateJSON is the descriptor this core writes alongside its output
// (spec §4.8, §6.2).
type collateJSON struct {
	Cmd               string `json:"cmd"`
	VersionStr        string `json:"version_str"`
	CompressedOutput  bool   `json:"compressed_output"`
}

func writeCollateJSON(inputDir, cmdline, versionStr string, compressOut bool) error {
	path := filepath.Join(inputDir, "collate.json")
	doc := collateJSON{Cmd: cmdline, VersionStr: versionStr, CompressedOutput: compressOut}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return newErr(KindIOError, path, "marshal collate.json", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return newErr(KindIOError, path, "write collate.json", err)
	}
	return nil
}

// outputFileName implements spec §4.9's naming table.
func outputFileName(veloMode, compressOut bool) string {
	switch {
	case veloMode:
		return "velo.map.collated.rad"
	case compressOut:
		return "map.collated.rad.sz"
	default:
		return "map.collated.rad"
	}
}

// removeIfExists deletes path if present (spec §4.9: "pre-existing files at
// these paths are deleted (not truncated) before creation").
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return newErr(KindIOError, path, "remove pre-existing output", err)
	}
	return nil
}
