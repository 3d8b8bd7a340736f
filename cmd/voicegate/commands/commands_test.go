package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haivivi/voicegate/pkg/storage"
)

func TestOpenVoiceprintsLocal(t *testing.T) {
	dir := t.TempDir()
	fs, err := openVoiceprints(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := fs.(*storage.Local); !ok {
		t.Errorf("store type = %T, want *storage.Local", fs)
	}
}

func TestOpenVoiceprintsS3(t *testing.T) {
	fs, err := openVoiceprints("s3://assistant/voiceprints")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := fs.(*storage.S3Store); !ok {
		t.Errorf("store type = %T, want *storage.S3Store", fs)
	}
}

func TestOpenVoiceprintsInvalid(t *testing.T) {
	if _, err := openVoiceprints(""); err == nil {
		t.Error("expected error for empty spec")
	}
	if _, err := openVoiceprints("s3://"); err == nil {
		t.Error("expected error for empty bucket")
	}
}

func TestLoadRunConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: \":7000\"\nupstream: from-file:10300\n"), 0644); err != nil {
		t.Fatal(err)
	}

	oldConfig, oldListen := flagConfig, flagListen
	defer func() { flagConfig, flagListen = oldConfig, oldListen }()
	flagConfig = path
	flagListen = ":8000"

	cfg, err := loadRunConfig(runCmd)
	if err != nil {
		t.Fatal(err)
	}
	// Flag beats file; file beats default.
	if cfg.Listen != ":8000" {
		t.Errorf("listen = %q, want :8000", cfg.Listen)
	}
	if cfg.Upstream != "from-file:10300" {
		t.Errorf("upstream = %q", cfg.Upstream)
	}
	if cfg.Threshold != 0.45 {
		t.Errorf("threshold = %v, want default 0.45", cfg.Threshold)
	}
}
