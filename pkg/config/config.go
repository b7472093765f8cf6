// Package config defines the storage engine's startup configuration: the
// spec's enumerated options, yaml.v3 round-tripping to/from a config file,
// and validator/v10 struct-tag validation, grounded on the teacher's
// pkg/validation (struct-tag validation via validator.New()) and
// pkg/validation/config.go (fluent range/default helpers reused below for
// checks validator tags can't express, like cross-field ordering).
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/lumadb/luma/pkg/admission"
	"github.com/lumadb/luma/pkg/lsm"
	"github.com/lumadb/luma/pkg/lumaerr"
	"github.com/lumadb/luma/pkg/shard"
	"github.com/lumadb/luma/pkg/sstable"
	"github.com/lumadb/luma/pkg/tier"
	"github.com/lumadb/luma/pkg/walog"
)

// WalSyncPolicy mirrors walog.SyncPolicy as a YAML-friendly string enum so
// config files read "always"/"group_commit"/"never" instead of an integer.
type WalSyncPolicy string

const (
	WalSyncAlways      WalSyncPolicy = "always"
	WalSyncGroupCommit WalSyncPolicy = "group_commit"
	WalSyncNever       WalSyncPolicy = "never"
)

func (p WalSyncPolicy) toWalog() (walog.SyncPolicy, error) {
	switch p {
	case "", WalSyncAlways:
		return walog.SyncAlways, nil
	case WalSyncGroupCommit:
		return walog.SyncGroupCommit, nil
	case WalSyncNever:
		return walog.SyncNever, nil
	default:
		return 0, lumaerr.New("config.WalSyncPolicy", lumaerr.InvalidRequest)
	}
}

// CompressionCodec mirrors sstable.Codec as a YAML-friendly string enum.
type CompressionCodec string

const (
	CompressionNone   CompressionCodec = "none"
	CompressionLZ4    CompressionCodec = "lz4"
	CompressionZstd   CompressionCodec = "zstd"
	CompressionSnappy CompressionCodec = "snappy"
)

func (c CompressionCodec) toSSTable() (sstable.Codec, error) {
	switch c {
	case "", CompressionSnappy:
		return sstable.CodecSnappy, nil
	case CompressionNone:
		return sstable.CodecNone, nil
	case CompressionZstd:
		return sstable.CodecZstd, nil
	case CompressionLZ4:
		// No lz4 implementation ships in the dependency pack (see
		// DESIGN.md); reject at config-validation time rather than
		// deferring to the first failing compressBlock call.
		return 0, lumaerr.New("config.CompressionCodec: lz4 has no implementation", lumaerr.InvalidRequest)
	default:
		return 0, lumaerr.New("config.CompressionCodec", lumaerr.InvalidRequest)
	}
}

// Config holds every knob spec.md §6 enumerates for a single storage node.
// Every field, the storage root included, comes from this struct, loaded
// from a YAML file via Load; nothing is read from environment variables.
type Config struct {
	StorageRoot string `yaml:"storage_root" validate:"required"`

	MemoryBudget      int64 `yaml:"memory_budget" validate:"required,min=1"`
	IndexMemoryBudget int64 `yaml:"index_memory_budget" validate:"required,min=1"`

	MemtableSize        int64            `yaml:"memtable_size" validate:"required,min=1"`
	BlockCacheSize      int64            `yaml:"block_cache_size" validate:"required,min=1"`
	L0FileNumTrigger    int              `yaml:"l0_file_num_trigger" validate:"required,min=1"`
	TargetFileSizeBase  int64            `yaml:"target_file_size_base" validate:"required,min=1"`
	NumLevels           int              `yaml:"num_levels" validate:"required,min=1,max=16"`
	Compression         CompressionCodec `yaml:"compression" validate:"omitempty,oneof=none lz4 zstd snappy"`
	BloomBitsPerKey     int              `yaml:"bloom_bits_per_key" validate:"min=0,max=32"`
	WalSyncPolicy       WalSyncPolicy    `yaml:"wal_sync_policy" validate:"omitempty,oneof=always group_commit never"`

	DirectIO bool `yaml:"direct_io"`
	HugePages bool `yaml:"huge_pages"`
	NumaNode  int  `yaml:"numa_node" validate:"min=-1"`

	HotThreshold       uint64 `yaml:"hot_threshold" validate:"min=0"`
	AccessWindowSecs   int64  `yaml:"access_window_secs" validate:"min=1"`
	AutoMigrate        bool   `yaml:"auto_migrate"`
	MigrationBatchSize int    `yaml:"migration_batch_size" validate:"min=1"`

	NumShards            uint32 `yaml:"num_shards" validate:"required,min=1"`
	ReplicationFactor    uint32 `yaml:"replication_factor" validate:"required,min=1"`
	VirtualNodesPerNode  int    `yaml:"virtual_nodes_per_node" validate:"min=1"`
	MinNodesForRebalance uint32 `yaml:"min_nodes_for_rebalance" validate:"min=1"`
	SplitThresholdBytes  uint64 `yaml:"split_threshold_bytes" validate:"min=1"`

	AdmissionMaxConcurrentPerTier map[string]int `yaml:"admission_max_concurrent_per_tier"`
}

var validate = validator.New()

// Default returns a Config whose LSM, tier and shard fields match the
// defaults the component packages apply internally (lsm.Options.setDefaults,
// tier.Config.setDefaults, shard.Config.setDefaults), except Compression:
// Default picks snappy, while an lsm.Options with no codec set uses none.
// StorageRoot has no default, so a partial file must still set it.
func Default() *Config {
	return &Config{
		MemoryBudget:         1 << 30,
		IndexMemoryBudget:    256 << 20,
		MemtableSize:         4 << 20,
		BlockCacheSize:       10000,
		L0FileNumTrigger:     4,
		TargetFileSizeBase:   64 << 20,
		NumLevels:            7,
		Compression:          CompressionSnappy,
		BloomBitsPerKey:      10,
		WalSyncPolicy:        WalSyncAlways,
		NumaNode:             -1,
		HotThreshold:         10,
		AccessWindowSecs:     3600,
		MigrationBatchSize:   1000,
		NumShards:            64,
		ReplicationFactor:    3,
		VirtualNodesPerNode:  150,
		MinNodesForRebalance: 3,
		SplitThresholdBytes:  1 << 30,
	}
}

// Load reads a YAML config file over Default's values, so any field the
// file does not set keeps its default (a field set explicitly to zero stays
// zero), and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, lumaerr.Wrap("config.Load", lumaerr.IoFailed, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, lumaerr.Wrap("config.Load", lumaerr.InvalidRequest, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return lumaerr.Wrap("config.Save", lumaerr.Internal, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return lumaerr.Wrap("config.Save", lumaerr.IoFailed, err)
	}
	return nil
}

// Validate runs validator/v10 struct-tag checks plus the cross-field
// invariants struct tags can't express (checks mirroring the teacher's
// fluent ConfigValidator, collapsed into one pass since every field here
// is independently tagged).
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if c.ReplicationFactor > c.NumShards {
		return lumaerr.New("config.Validate: replication_factor must not exceed num_shards", lumaerr.InvalidRequest)
	}
	if _, err := c.WalSyncPolicy.toWalog(); err != nil {
		return err
	}
	if _, err := c.Compression.toSSTable(); err != nil {
		return err
	}
	return nil
}

func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return lumaerr.Wrap("config.Validate", lumaerr.InvalidRequest, err)
	}
	e := verrs[0]
	return lumaerr.New(fmt.Sprintf("config.Validate: %s failed %q", e.Field(), e.Tag()), lumaerr.InvalidRequest)
}

// AdmissionLimits converts the per-tier string map loaded from YAML into
// admission.Tier keys for admission.NewControllerWithLimits.
func (c *Config) AdmissionLimits() map[admission.Tier]int {
	if len(c.AdmissionMaxConcurrentPerTier) == 0 {
		return nil
	}
	names := map[string]admission.Tier{
		"critical":   admission.Critical,
		"high":       admission.High,
		"normal":     admission.Normal,
		"background": admission.Background,
	}
	out := make(map[admission.Tier]int, len(c.AdmissionMaxConcurrentPerTier))
	for name, n := range c.AdmissionMaxConcurrentPerTier {
		if t, ok := names[name]; ok {
			out[t] = n
		}
	}
	return out
}

// TierConfig builds a pkg/tier.Config from the hybrid-memory fields.
func (c *Config) TierConfig() tier.Config {
	return tier.Config{
		HotThreshold:       c.HotThreshold,
		AccessWindowSecs:   c.AccessWindowSecs,
		MigrationBatchSize: c.MigrationBatchSize,
	}
}

// ShardConfig builds a pkg/shard.Config from the sharding fields.
func (c *Config) ShardConfig() shard.Config {
	return shard.Config{
		NumShards:            c.NumShards,
		ReplicationFactor:    c.ReplicationFactor,
		VirtualNodesPerNode:  c.VirtualNodesPerNode,
		MinNodesForRebalance: c.MinNodesForRebalance,
		SplitThresholdBytes:  c.SplitThresholdBytes,
	}
}

// LSMOptions builds a pkg/lsm.Options from the LSM-tuning fields. dataDir
// is passed separately; the caller derives it from StorageRoot (e.g.
// filepath.Join with a per-shard subdirectory).
func (c *Config) LSMOptions(dataDir string) (lsm.Options, error) {
	codec, err := c.Compression.toSSTable()
	if err != nil {
		return lsm.Options{}, err
	}
	sync, err := c.WalSyncPolicy.toWalog()
	if err != nil {
		return lsm.Options{}, err
	}
	return lsm.Options{
		DataDir:            dataDir,
		MemTableSize:       int(c.MemtableSize),
		L0FileNumTrigger:   c.L0FileNumTrigger,
		TargetFileSizeBase: c.TargetFileSizeBase,
		BlockCacheCapacity: int(c.BlockCacheSize),
		SSTableCodec:       codec,
		BloomBitsPerKey:    c.BloomBitsPerKey,
		SyncPolicy:         sync,
		MaxLevels:          c.NumLevels,
	}, nil
}
