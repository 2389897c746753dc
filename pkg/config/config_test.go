package config

import (
	"os"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Sheets.Tab != "Sheet1" {
		t.Errorf("default tab = %q, want Sheet1", cfg.Sheets.Tab)
	}
	if cfg.Extraction.FallbackConfidence != 0.3 {
		t.Errorf("fallback confidence = %v, want 0.3", cfg.Extraction.FallbackConfidence)
	}
	if cfg.Enrichment.ConfidenceFloor != 0.7 {
		t.Errorf("confidence floor = %v, want 0.7", cfg.Enrichment.ConfidenceFloor)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
}

func TestMerge(t *testing.T) {
	m := NewManager()
	m.merge(&Config{
		Sheets: SheetsConfig{GeneralID: "sheet-general", TravelID: "sheet-travel"},
		Server: ServerConfig{Port: 9000},
	})

	cfg := m.Get()
	if cfg.Sheets.GeneralID != "sheet-general" {
		t.Errorf("GeneralID = %q", cfg.Sheets.GeneralID)
	}
	if cfg.Sheets.TravelID != "sheet-travel" {
		t.Errorf("TravelID = %q", cfg.Sheets.TravelID)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	// Unset fields keep defaults.
	if cfg.Sheets.Tab != "Sheet1" {
		t.Errorf("Tab = %q, want default", cfg.Sheets.Tab)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("GOOGLE_SHEET_ID", "env-sheet")
	t.Setenv("USE_LLM", "true")
	t.Setenv("PORT", "9191")
	t.Setenv("TEMP_DIR", t.TempDir())

	m := NewManager()
	m.loadEnv()

	cfg := m.Get()
	if cfg.Sheets.GeneralID != "env-sheet" {
		t.Errorf("GeneralID = %q, want env-sheet", cfg.Sheets.GeneralID)
	}
	if !cfg.Extraction.UseLLM {
		t.Error("UseLLM should be true")
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Port = %d, want 9191", cfg.Server.Port)
	}
}

func TestLoadEnv_UseLLMFalse(t *testing.T) {
	t.Setenv("USE_LLM", "false")

	m := NewManager()
	m.config.Extraction.UseLLM = true
	m.loadEnv()

	if m.Get().Extraction.UseLLM {
		t.Error("USE_LLM=false should disable the model")
	}
}

func TestGlobal_SharedManager(t *testing.T) {
	first := Global()
	if first == nil || first.Get() == nil {
		t.Fatal("global manager not initialized")
	}
	if Global() != first {
		t.Error("Global should return the same manager")
	}
}

func TestLoad_ResetsPaths(t *testing.T) {
	m := NewManager()
	if err := m.Load(""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	n := len(m.GetPaths())
	if err := m.Load(""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(m.GetPaths()); got != n {
		t.Errorf("paths after reload = %d, want %d", got, n)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	m := NewManager()
	err := m.loadFile("/nonexistent/reelsheet.yaml")
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
