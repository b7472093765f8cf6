package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lumadb/luma/pkg/admission"
	"github.com/lumadb/luma/pkg/lumaerr"
)

func validConfig() *Config {
	c := Default()
	c.StorageRoot = "/var/lib/luma"
	return c
}

func TestDefaultPassesValidation(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestMissingStorageRootFailsValidation(t *testing.T) {
	c := Default()
	if err := c.Validate(); lumaerr.KindOf(err) != lumaerr.InvalidRequest {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}
}

func TestReplicationFactorExceedingShardsRejected(t *testing.T) {
	c := validConfig()
	c.NumShards = 2
	c.ReplicationFactor = 5
	if err := c.Validate(); lumaerr.KindOf(err) != lumaerr.InvalidRequest {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}
}

func TestBadWalSyncPolicyRejected(t *testing.T) {
	c := validConfig()
	c.WalSyncPolicy = "whenever"
	if err := c.Validate(); lumaerr.KindOf(err) != lumaerr.InvalidRequest {
		t.Fatalf("expected InvalidRequest for bad wal_sync_policy, got %v", err)
	}
}

func TestBadCompressionRejected(t *testing.T) {
	c := validConfig()
	c.Compression = "gzip"
	if err := c.Validate(); lumaerr.KindOf(err) != lumaerr.InvalidRequest {
		t.Fatalf("expected InvalidRequest for bad compression, got %v", err)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	c := validConfig()
	c.NumShards = 32
	c.Compression = CompressionZstd
	path := filepath.Join(t.TempDir(), "luma.yaml")
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.NumShards != 32 || loaded.Compression != CompressionZstd {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestLoadAppliesDefaultsForZeroFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("storage_root: /data\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.NumShards != 64 || c.ReplicationFactor != 3 {
		t.Fatalf("defaults not applied: %+v", c)
	}
}

func TestAdmissionLimitsMapsKnownTierNames(t *testing.T) {
	c := validConfig()
	c.AdmissionMaxConcurrentPerTier = map[string]int{"critical": 20000, "bogus": 5}
	limits := c.AdmissionLimits()
	if limits[admission.Critical] != 20000 {
		t.Fatalf("limits = %v", limits)
	}
	if _, ok := limits[admission.Tier(99)]; ok {
		t.Fatal("unknown tier name should not map to anything")
	}
}

func TestLSMOptionsRejectsLZ4(t *testing.T) {
	c := validConfig()
	c.Compression = CompressionLZ4
	opts, err := c.LSMOptions("/data/shard0")
	if err == nil {
		t.Fatalf("expected error selecting lz4 (no implementation ships), got opts=%+v", opts)
	}
}
