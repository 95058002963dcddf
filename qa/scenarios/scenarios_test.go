package scenarios

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no scenario files")
	}
	for _, f := range files {
		sc, err := Load(f)
		if err != nil {
			t.Fatalf("load %s: %v", f, err)
		}
		t.Run(sc.Name, func(t *testing.T) {
			RunScenario(t, sc)
		})
	}
}

func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	rep, err := Run(context.Background(), sc, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := Check(sc, rep); err != nil {
		t.Fatalf("scenario %s: %v", sc.Name, err)
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load("no-file.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
	write := func(body string) string {
		p := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		return p
	}
	if _, err := Load(write(":")); err == nil {
		t.Fatal("expected unmarshal error")
	}
	if _, err := Load(write("description: nameless\n")); err == nil {
		t.Fatal("expected missing name error")
	}
	if _, err := Load(write("name: x\nheroes:\n  - {id: h, answer: maybe}\n")); err == nil {
		t.Fatal("expected unknown answer error")
	}
}

func TestConfigDefaultsToShortWaves(t *testing.T) {
	sc := &Scenario{Name: "defaults"}
	cfg := sc.Config()
	if len(cfg.Waves) != 5 {
		t.Fatalf("expected 5 default waves, got %d", len(cfg.Waves))
	}
	for _, b := range cfg.Waves {
		if b.TimeoutSeconds != 0.05 {
			t.Fatalf("expected shortened timeout, got %v", b.TimeoutSeconds)
		}
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default scenario config invalid: %v", err)
	}
}

func TestCheckReportsMismatch(t *testing.T) {
	sc := &Scenario{Name: "mismatch", Expected: Expected{Result: "accepted", AcceptedBy: "h1"}}
	if err := Check(sc, Report{}); err == nil {
		t.Fatal("expected mismatch")
	}
}
