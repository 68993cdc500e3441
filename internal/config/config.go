// Package config loads and validates mediadedupe's tunable thresholds,
// weights, and concurrency caps (spec.md §6).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
)

// schemaVersion guards config.json forward/backward compatibility.
const schemaVersion = 1

// ConfidenceWeights are the per-signal weights the confidence engine sums
// (spec.md §4.6). All are configurable; these are the documented defaults.
type ConfidenceWeights struct {
	ChecksumEqual      float64 `json:"checksum_equal"`
	PHashAccept        float64 `json:"phash_accept"`
	VideoFPAccept      float64 `json:"video_fp_accept"`
	CaptureTimeAccept  float64 `json:"capture_time_accept"`
	GPSAccept          float64 `json:"gps_accept"`
	CameraModelMatch   float64 `json:"camera_model_match"`
	FilenameSimilarity float64 `json:"filename_similarity_accept"`
	SizeRatioAccept    float64 `json:"size_ratio_accept"`
	PenaltyEach        float64 `json:"penalty_each"`
}

// Config mirrors every recognized option in spec.md §6, with defaults
// matching spec.md's documented values.
type Config struct {
	SchemaVersion int `json:"schema_version"`

	PHashRadius              int `json:"phash_radius"`
	PHashAccept              int `json:"phash_accept"`
	PHashPenalty              int `json:"phash_penalty"`
	VideoFrameSamples         int `json:"video_frame_samples"`
	VideoAcceptAvgBits        int `json:"video_accept_avg_bits"`
	VideoDurationToleranceMS  int64 `json:"video_duration_tolerance_ms"`
	RVidFirstBits             int `json:"r_vid_first_bits"`
	VideoBucketWidthSeconds   int `json:"video_bucket_width_seconds"`

	BucketCap int `json:"bucket_cap"`
	// BKTreeBuildBudgetMS resolves spec.md §9's BK-tree-vs-linear-scan
	// Open Question: build the tree unless the pre-sampled average
	// insert cost projects construction to exceed this budget, in which
	// case fall back to a linear Hamming scan over all photos. One
	// projection covers the whole photo set.
	BKTreeBuildBudgetMS int `json:"bktree_build_budget_ms"`

	ExtractionParallelism int   `json:"extraction_parallelism"` // 0 = auto
	ExtractionTimeoutMS   int64 `json:"extraction_timeout_ms"`
	MaxPendingSignatures  int   `json:"max_pending_signatures"`
	MaxPendingEdges       int   `json:"max_pending_edges"`
	ClusterTimeBudgetMS   int64 `json:"cluster_time_budget_ms"`
	ExecuteTimeoutMS      int64 `json:"execute_timeout_ms"`

	CaptureTimeAcceptSeconds int64 `json:"capture_time_accept_seconds"`
	CaptureTimePenaltyDays   int64 `json:"capture_time_penalty_days"`
	GPSAcceptMeters          float64 `json:"gps_accept_meters"`
	GPSPenaltyMeters         float64 `json:"gps_penalty_meters"`
	FilenameAcceptScore      float64 `json:"filename_accept_score"`
	FilenamePenaltyScore     float64 `json:"filename_penalty_score"`
	SizeRatioAcceptMin       float64 `json:"size_ratio_accept_min"`
	SizeRatioAcceptMax       float64 `json:"size_ratio_accept_max"`
	SizeRatioPenaltyMin      float64 `json:"size_ratio_penalty_min"`
	SizeRatioPenaltyMax      float64 `json:"size_ratio_penalty_max"`

	ConfidenceWeights ConfidenceWeights `json:"confidence_weights"`

	MoveToTrash        bool     `json:"move_to_trash"`
	UndoRetentionDays  int      `json:"undo_retention_days"`
	ForceOverwriteFields []string `json:"force_overwrite_fields"`

	HiddenFilesVisible bool     `json:"hidden_files_visible"`
	IgnoreGlobs        []string `json:"ignore_globs"`

	// MinFileSizeBytes skips media below this size during scanning (e.g.
	// thumbnail sidecars, corrupt zero-byte files). 0 disables the floor.
	MinFileSizeBytes int64 `json:"min_file_size_bytes"`
}

// Default returns the configuration with every documented default value
// from spec.md §4 and §6 applied.
func Default() *Config {
	return &Config{
		SchemaVersion: schemaVersion,

		// PHashAccept/PHashPenalty are tuned for goimagehash's
		// DifferenceHash: its 64-bit gradient hash puts true
		// near-duplicates (recompression, light retouch, resize) within
		// a handful of flipped bits and unrelated photos well past 10,
		// the same accept/penalty split commonly used for dHash.
		PHashRadius:             8,
		PHashAccept:             5,
		PHashPenalty:            10,
		VideoFrameSamples:       9,
		VideoAcceptAvgBits:      6,
		VideoDurationToleranceMS: 2000,
		RVidFirstBits:           8,
		VideoBucketWidthSeconds: 2,

		BucketCap:           256,
		BKTreeBuildBudgetMS: 200,

		ExtractionParallelism: 0,
		ExtractionTimeoutMS:   30_000,
		MaxPendingSignatures:  1024,
		MaxPendingEdges:       4096,
		ClusterTimeBudgetMS:   60_000,
		ExecuteTimeoutMS:      120_000,

		CaptureTimeAcceptSeconds: 2,
		CaptureTimePenaltyDays:   1,
		GPSAcceptMeters:          30,
		GPSPenaltyMeters:         1000,
		FilenameAcceptScore:      0.85,
		FilenamePenaltyScore:     0.5,
		SizeRatioAcceptMin:       0.8,
		SizeRatioAcceptMax:       1.25,
		SizeRatioPenaltyMin:      0.5,
		SizeRatioPenaltyMax:      2.0,

		ConfidenceWeights: ConfidenceWeights{
			ChecksumEqual:      1.0,
			PHashAccept:        0.55,
			VideoFPAccept:      0.6,
			CaptureTimeAccept:  0.15,
			GPSAccept:          0.15,
			CameraModelMatch:   0.05,
			FilenameSimilarity: 0.05,
			SizeRatioAccept:    0.05,
			PenaltyEach:        0.2,
		},

		MoveToTrash:          true,
		UndoRetentionDays:    7,
		ForceOverwriteFields: nil,

		HiddenFilesVisible: false,
		IgnoreGlobs:        nil,

		MinFileSizeBytes: 0,
	}
}

// ResolvedExtractionParallelism returns ExtractionParallelism, substituting
// min(cpu_count, 8) when it is unset (0), per spec.md §4.2/§5.
func (c *Config) ResolvedExtractionParallelism() int {
	if c.ExtractionParallelism > 0 {
		return c.ExtractionParallelism
	}
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Load reads config.json from path, applying defaults for any field the
// file omits (by loading onto a Default() base) and refusing a version
// mismatch with a schema_mismatch error (spec.md §6).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Peek the version first so a mismatch is reported before attempting
	// to interpret a config file this binary's schema doesn't own.
	var versionProbe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &versionProbe); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if versionProbe.SchemaVersion != 0 && versionProbe.SchemaVersion != schemaVersion {
		return nil, &SchemaMismatchError{Found: versionProbe.SchemaVersion, Want: schemaVersion}
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.SchemaVersion = schemaVersion
	return cfg, nil
}

// Save writes cfg to path as indented JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// SchemaMismatchError reports a config.json (or store.db) version that
// this binary does not know how to read (spec.md §6).
type SchemaMismatchError struct {
	Found, Want int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema_mismatch: found version %d, want %d", e.Found, e.Want)
}
