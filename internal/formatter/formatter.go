// package formatter renders aggregated sequences and session responses (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tasting/internal/aggregate"
	"github.com/desertthunder/tasting/internal/models"
)

// SessionReport is a session's responses with everything needed to render them.
type SessionReport struct {
	Package      *models.Package
	Session      *models.Session
	Sequence     *aggregate.Sequence
	Participants []*models.Participant
	Responses    []*models.Response
}

// OutlineToMarkdown renders the aggregated order of a package as nested Markdown lists.
func OutlineToMarkdown(pkg *models.Package, seq *aggregate.Sequence) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s (%s)\n\n", pkg.Name(), pkg.Code())
	if pkg.Description() != "" {
		fmt.Fprintf(&buf, "%s\n\n", pkg.Description())
	}
	fmt.Fprintf(&buf, "**Wines**: %d\n**Slides**: %d\n\n", len(seq.Wines), seq.Len())

	currentWine := ""
	for i, s := range seq.Slides {
		if s.IsPackageIntro() {
			fmt.Fprintf(&buf, "%d. **Welcome**: %s\n", i+1, slideLabel(s))
			continue
		}
		if s.WineID() != currentWine {
			currentWine = s.WineID()
			name := currentWine
			if w := seq.Wine(currentWine); w != nil {
				name = w.Name()
			}
			fmt.Fprintf(&buf, "\n## %s\n\n", name)
		}
		fmt.Fprintf(&buf, "%d. [%s] %s `%s`\n", i+1, s.Section(), slideLabel(s), formatPosition(s.Position()))
	}

	return buf.Bytes()
}

// OutlineToText renders the aggregated order one slide per line.
func OutlineToText(pkg *models.Package, seq *aggregate.Sequence) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Package: %s (%s)\n", pkg.Name(), pkg.Code())
	fmt.Fprintf(&buf, "Slides: %d\n\n", seq.Len())

	for i, s := range seq.Slides {
		wine := s.WineID()
		if w := seq.Wine(wine); w != nil {
			wine = w.Name()
		}
		marker := ""
		if s.IsPackageIntro() {
			marker = " *"
		}
		fmt.Fprintf(&buf, "%3d. %-24s %-9s %-10s %s%s\n", i+1, truncate(wine, 24), s.Section(), formatPosition(s.Position()), slideLabel(s), marker)
	}

	return buf.Bytes()
}

// ReportToCSV converts a session report to CSV, one row per response in playback order.
func ReportToCSV(report *SessionReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Participant", "Host", "Index", "Wine", "Section", "Slide", "Kind", "Answer", "Raw", "Synced", "Updated"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	names := participantNames(report.Participants)
	hosts := map[string]bool{}
	for _, p := range report.Participants {
		hosts[p.ID()] = p.IsHost()
	}

	for _, resp := range orderedResponses(report) {
		idx := report.Sequence.IndexOf(resp.SlideID())
		slide, _ := report.Sequence.At(idx)

		record := []string{
			names[resp.ParticipantID()],
			strconv.FormatBool(hosts[resp.ParticipantID()]),
			strconv.Itoa(idx + 1),
			"", "", resp.SlideID(), "",
			SummarizeAnswer(slide, resp.Answer()),
			string(resp.Answer()),
			strconv.FormatBool(resp.Synced()),
			resp.UpdatedAt().UTC().Format(time.RFC3339),
		}
		if slide != nil {
			if w := report.Sequence.Wine(slide.WineID()); w != nil {
				record[3] = w.Name()
			}
			record[4] = string(slide.Section())
			record[5] = slideLabel(slide)
			record[6] = string(slide.QuestionKind())
		}

		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ReportToMarkdown renders each question slide with every participant's answer, grouped by wine.
// Scale questions get the mean of their answers. imageFiles maps wine ids to downloaded image paths.
func ReportToMarkdown(report *SessionReport, imageFiles map[string]string) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", report.Package.Name())
	fmt.Fprintf(&buf, "**Session**: %s\n", report.Session.ShortCode())
	fmt.Fprintf(&buf, "**Status**: %s\n", report.Session.Status())
	fmt.Fprintf(&buf, "**Participants**: %d\n", len(report.Participants))
	fmt.Fprintf(&buf, "**Responses**: %d\n\n", len(report.Responses))

	names := participantNames(report.Participants)
	bySlide := map[string][]*models.Response{}
	for _, r := range orderedResponses(report) {
		bySlide[r.SlideID()] = append(bySlide[r.SlideID()], r)
	}

	currentWine := ""
	for _, s := range report.Sequence.Slides {
		q, ok := s.Question()
		if !ok {
			continue
		}
		if s.WineID() != currentWine {
			currentWine = s.WineID()
			if w := report.Sequence.Wine(currentWine); w != nil {
				fmt.Fprintf(&buf, "## %s\n\n", w.Name())
				if img := imageFiles[w.ID()]; img != "" {
					fmt.Fprintf(&buf, "![%s](%s)\n\n", w.Name(), img)
				}
			}
		}

		fmt.Fprintf(&buf, "### %s\n\n", slideLabel(s))
		answers := bySlide[s.ID()]
		if len(answers) == 0 {
			buf.WriteString("_No answers_\n\n")
			continue
		}
		for _, r := range answers {
			fmt.Fprintf(&buf, "- %s: %s\n", names[r.ParticipantID()], SummarizeAnswer(s, r.Answer()))
		}
		if scale, ok := q.(models.ScalePayload); ok {
			if mean, n := scaleMean(answers); n > 0 {
				fmt.Fprintf(&buf, "\n**Average**: %.1f / %d (%d answers)\n", mean, scale.Max, n)
			}
		}
		buf.WriteString("\n")
	}

	return buf.Bytes()
}

// SummarizeAnswer renders an answer for humans given its slide. Unknown shapes fall back to raw JSON.
func SummarizeAnswer(slide *models.Slide, raw json.RawMessage) string {
	if slide == nil {
		return string(raw)
	}

	switch p := slide.Payload().(type) {
	case models.ScalePayload:
		var a models.ScaleAnswer
		if json.Unmarshal(raw, &a) == nil {
			return fmt.Sprintf("%d/%d", a.Value, p.Max)
		}
	case models.ChoicePayload:
		var a models.ChoiceAnswer
		if json.Unmarshal(raw, &a) == nil {
			texts := map[string]string{}
			for _, o := range p.Options {
				texts[o.ID] = o.Text
			}
			parts := make([]string, len(a.Selected))
			for i, id := range a.Selected {
				parts[i] = texts[id]
				if parts[i] == "" {
					parts[i] = id
				}
			}
			return strings.Join(parts, ", ")
		}
	case models.TextPayload:
		var a models.TextAnswer
		if json.Unmarshal(raw, &a) == nil {
			return a.Text
		}
	}
	return string(raw)
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// SessionMetadata is the JSON written next to CSV exports.
type SessionMetadata struct {
	PackageCode  string    `json:"packageCode"`
	PackageName  string    `json:"packageName"`
	SessionID    string    `json:"sessionId"`
	ShortCode    string    `json:"shortCode"`
	Status       string    `json:"status"`
	Participants int       `json:"participants"`
	Responses    int       `json:"responses"`
	Slides       int       `json:"slides"`
	ExportedAt   time.Time `json:"exportedAt"`
}

// ToMetadataJSON generates the session metadata (without responses)
func ToMetadataJSON(report *SessionReport) ([]byte, error) {
	return json.MarshalIndent(SessionMetadata{
		PackageCode:  report.Package.Code(),
		PackageName:  report.Package.Name(),
		SessionID:    report.Session.ID(),
		ShortCode:    report.Session.ShortCode(),
		Status:       string(report.Session.Status()),
		Participants: len(report.Participants),
		Responses:    len(report.Responses),
		Slides:       report.Sequence.Len(),
		ExportedAt:   time.Now().UTC(),
	}, "", "  ")
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	ResponsesFile string
	MetadataFile  string
}

// WriteCSVExport exports a session to CSV with an accompanying metadata JSON file.
//
// Defaults to the session short code as the base filename & creates {base}_responses.csv and {base}_metadata.json
func WriteCSVExport(report *SessionReport, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = report.Session.ShortCode()
	}

	csvData, err := ReportToCSV(report)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	responsesFile := baseFilepath + "_responses.csv"
	if err := os.WriteFile(responsesFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(report)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		ResponsesFile: responsesFile,
		MetadataFile:  metadataFile,
	}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory string
	Files     []string
	Images    []string
}

// WriteMarkdownExport exports a session to Markdown in a dedicated directory.
//
// Directory name defaults to the session short code. With fetchImages, wine images referenced by
// http(s) URL are downloaded next to the README; failures only produce a warning.
func WriteMarkdownExport(report *SessionReport, outputDir string, fetchImages bool) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = report.Session.ShortCode()
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{
		Directory: outputDir,
		Files:     []string{},
	}

	images := map[string]string{}
	if fetchImages {
		for _, w := range report.Sequence.Wines {
			ref := w.ImageRef()
			if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
				continue
			}
			data, err := DownloadImage(ref)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to download image for %s: %v\n", w.Name(), err)
				continue
			}
			name := w.ID() + ".jpg"
			path := filepath.Join(outputDir, name)
			if err := os.WriteFile(path, data, 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save image for %s: %v\n", w.Name(), err)
				continue
			}
			images[w.ID()] = name
			result.Images = append(result.Images, path)
			result.Files = append(result.Files, path)
		}
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, ReportToMarkdown(report, images), 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteOutline writes a rendered outline to path.
func WriteOutline(data []byte, path string) (string, error) {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write outline: %w", err)
	}
	return path, nil
}

// WriteManifest writes v as indented JSON to path.
func WriteManifest(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// orderedResponses sorts by participant join order, then playback order of the slide.
func orderedResponses(report *SessionReport) []*models.Response {
	joined := map[string]int{}
	for i, p := range report.Participants {
		joined[p.ID()] = i
	}

	out := make([]*models.Response, len(report.Responses))
	copy(out, report.Responses)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if joined[a.ParticipantID()] != joined[b.ParticipantID()] {
			return joined[a.ParticipantID()] < joined[b.ParticipantID()]
		}
		return report.Sequence.IndexOf(a.SlideID()) < report.Sequence.IndexOf(b.SlideID())
	})
	return out
}

func participantNames(participants []*models.Participant) map[string]string {
	names := make(map[string]string, len(participants))
	for _, p := range participants {
		names[p.ID()] = p.DisplayName()
	}
	return names
}

func scaleMean(answers []*models.Response) (float64, int) {
	sum, n := 0, 0
	for _, r := range answers {
		var a models.ScaleAnswer
		if json.Unmarshal(r.Answer(), &a) == nil {
			sum += a.Value
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return float64(sum) / float64(n), n
}

func slideLabel(s *models.Slide) string {
	if s.Title() != "" {
		return s.Title()
	}
	switch p := s.Payload().(type) {
	case models.ScalePayload:
		return p.Prompt
	case models.ChoicePayload:
		return p.Prompt
	case models.TextPayload:
		return p.Prompt
	case models.MediaPayload:
		return p.Title
	case models.InterludePayload:
		return p.Title
	}
	return s.ID()
}

func formatPosition(pos float64) string {
	return strconv.FormatFloat(pos, 'f', -1, 64)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
