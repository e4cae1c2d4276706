package formatter

import (
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/tasting/internal/aggregate"
	"github.com/desertthunder/tasting/internal/models"
	th "github.com/desertthunder/tasting/internal/testing"
)

func buildReport(t *testing.T) *SessionReport {
	t.Helper()

	pkg, wines, slides := th.TastingFixture(true, 2, 1)
	seq := aggregate.Build(aggregate.Input{PackageID: pkg.ID(), Wines: wines, Slides: slides})

	session := models.NewSession(1, pkg.ID(), "ABC234")
	session.SetID("session")

	alice := models.NewParticipant(session.ID(), "Alice", true)
	alice.SetID("p-alice")
	bob := models.NewParticipant(session.ID(), "Bob", false)
	bob.SetID("p-bob")

	answer := func(p *models.Participant, slideID, raw string) *models.Response {
		r := models.NewResponse(p.ID(), slideID, json.RawMessage(raw), true)
		r.SetID(p.ID() + "-" + slideID)
		return r
	}

	return &SessionReport{
		Package:      pkg,
		Session:      session,
		Sequence:     seq,
		Participants: []*models.Participant{alice, bob},
		Responses: []*models.Response{
			answer(bob, "w1-s0", `{"value":2}`),
			answer(alice, "w2-s0", `{"value":5}`),
			answer(alice, "w1-s0", `{"value":4}`),
		},
	}
}

func TestOutline(t *testing.T) {
	report := buildReport(t)

	t.Run("Markdown", func(t *testing.T) {
		out := string(OutlineToMarkdown(report.Package, report.Sequence))

		for _, want := range []string{"# Fixture tasting (FIXTURE)", "**Slides**: 4", "**Welcome**: Welcome", "## Wine 1", "## Wine 2"} {
			if !strings.Contains(out, want) {
				t.Errorf("outline missing %q:\n%s", want, out)
			}
		}
		if strings.Index(out, "## Wine 1") > strings.Index(out, "## Wine 2") {
			t.Error("wines out of order")
		}
	})

	t.Run("Text", func(t *testing.T) {
		out := string(OutlineToText(report.Package, report.Sequence))
		lines := strings.Split(strings.TrimSpace(out), "\n")

		if len(lines) != 3+4 {
			t.Fatalf("expected header plus 4 slide lines, got %d:\n%s", len(lines), out)
		}
		if !strings.HasSuffix(lines[3], "*") {
			t.Errorf("expected welcome marker on first slide, got %q", lines[3])
		}
	})
}

func TestReportToCSV(t *testing.T) {
	data, err := ReportToCSV(buildReport(t))
	if err != nil {
		t.Fatalf("ReportToCSV failed: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header and 3 rows, got %d", len(records))
	}

	if records[0][0] != "Participant" || records[0][7] != "Answer" {
		t.Errorf("unexpected headers %v", records[0])
	}

	// Alice joined first; her answers follow playback order
	if records[1][0] != "Alice" || records[1][5] != "Slide 1.1" || records[1][7] != "4/5" {
		t.Errorf("unexpected first row %v", records[1])
	}
	if records[2][0] != "Alice" || records[2][3] != "Wine 2" {
		t.Errorf("unexpected second row %v", records[2])
	}
	if records[3][0] != "Bob" || records[3][1] != "false" {
		t.Errorf("unexpected third row %v", records[3])
	}
}

func TestReportToMarkdown(t *testing.T) {
	out := string(ReportToMarkdown(buildReport(t), map[string]string{"w1": "w1.jpg"}))

	for _, want := range []string{
		"**Session**: ABC234",
		"**Responses**: 3",
		"![Wine 1](w1.jpg)",
		"- Alice: 4/5",
		"- Bob: 2/5",
		"**Average**: 3.0 / 5 (2 answers)",
		"_No answers_",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "### Welcome") {
		t.Error("non-question slides should not be listed")
	}
}

func TestSummarizeAnswer(t *testing.T) {
	choice := models.NewSlide("w1", models.SectionDeepDive, 1, "Fruit", models.ChoicePayload{
		Prompt:        "Fruit?",
		Options:       []models.ChoiceOption{{ID: "a", Text: "Cherry"}, {ID: "b", Text: "Plum"}},
		AllowMultiple: true,
	})
	text := models.NewSlide("w1", models.SectionDeepDive, 2, "", models.TextPayload{Prompt: "Notes"})

	tests := []struct {
		name  string
		slide *models.Slide
		raw   string
		want  string
	}{
		{"choice", choice, `{"selected":["b","a"]}`, "Plum, Cherry"},
		{"unknown option id", choice, `{"selected":["z"]}`, "z"},
		{"text", text, `{"text":"smoky"}`, "smoky"},
		{"no slide", nil, `{"x":1}`, `{"x":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SummarizeAnswer(tt.slide, json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("SummarizeAnswer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriters(t *testing.T) {
	t.Run("WriteCSVExport", func(t *testing.T) {
		dir := t.TempDir()
		res, err := WriteCSVExport(buildReport(t), filepath.Join(dir, "abc"))
		if err != nil {
			t.Fatalf("WriteCSVExport failed: %v", err)
		}

		th.AssertFileExists(t, res.ResponsesFile)
		th.AssertFileExists(t, res.MetadataFile)

		var meta SessionMetadata
		if err := json.Unmarshal([]byte(th.MustReadFile(t, res.MetadataFile)), &meta); err != nil {
			t.Fatalf("metadata is not JSON: %v", err)
		}
		if meta.ShortCode != "ABC234" || meta.Responses != 3 || meta.Slides != 4 {
			t.Errorf("unexpected metadata %+v", meta)
		}
	})

	t.Run("WriteMarkdownExport", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "session")
		res, err := WriteMarkdownExport(buildReport(t), dir, false)
		if err != nil {
			t.Fatalf("WriteMarkdownExport failed: %v", err)
		}

		th.AssertDirExists(t, res.Directory)
		if len(res.Files) != 1 || len(res.Images) != 0 {
			t.Errorf("expected only README, got %v", res.Files)
		}
	})

	t.Run("WriteManifest", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "manifest.json")
		if err := WriteManifest(map[string]int{"sessions": 2}, path); err != nil {
			t.Fatalf("WriteManifest failed: %v", err)
		}
		if !strings.Contains(th.MustReadFile(t, path), `"sessions": 2`) {
			t.Error("manifest content mismatch")
		}
	})

	t.Run("WriteOutline into missing directory", func(t *testing.T) {
		_, err := WriteOutline([]byte("x"), filepath.Join(t.TempDir(), "missing", "outline.md"))
		if err == nil {
			t.Error("expected error")
		}
	})

	t.Run("DownloadImage empty URL", func(t *testing.T) {
		if _, err := DownloadImage(""); err == nil {
			t.Error("expected error for empty URL")
		}
	})
}

func TestTruncate(t *testing.T) {
	if got := truncate("Châteauneuf-du-Pape", 8); got != "Château…" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("Syrah", 8); got != "Syrah" {
		t.Errorf("truncate() = %q", got)
	}
}
