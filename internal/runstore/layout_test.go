package runstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shorteezy/internal/model"
)

func TestLayoutAssetPathsUseTypeIndex(t *testing.T) {
	l := NewLayout(filepath.Join("shorts", "1700000000"))

	cases := []struct {
		kind  model.Kind
		index int
		ext   string
		want  string
	}{
		{model.KindImagePrompt, 1, "webp", filepath.Join("shorts", "1700000000", "images", "image_1.webp")},
		{model.KindImagePrompt, 12, ".jpg", filepath.Join("shorts", "1700000000", "images", "image_12.jpg")},
		{model.KindNarration, 2, "wav", filepath.Join("shorts", "1700000000", "narrations", "narration_2.wav")},
		{model.KindNarration, 3, "", filepath.Join("shorts", "1700000000", "narrations", "narration_3")},
	}
	for _, tc := range cases {
		if got := l.AssetPath(tc.kind, tc.index, tc.ext); got != tc.want {
			t.Fatalf("AssetPath(%s,%d,%q) = %q, want %q", tc.kind, tc.index, tc.ext, got, tc.want)
		}
	}
	if got := l.ManifestPath(); got != filepath.Join("shorts", "1700000000", "data.json") {
		t.Fatalf("manifest path mismatch: %s", got)
	}
	if got := l.ScriptPath(); got != filepath.Join("shorts", "1700000000", "response.txt") {
		t.Fatalf("script path mismatch: %s", got)
	}
}

func TestEnsureDirsIsIdempotent(t *testing.T) {
	l := NewLayout(filepath.Join(t.TempDir(), "run"))
	for i := 0; i < 2; i++ {
		if err := l.EnsureDirs(); err != nil {
			t.Fatalf("ensure dirs pass %d: %v", i, err)
		}
	}
	for _, dir := range []string{l.DirFor(model.KindImagePrompt), l.DirFor(model.KindNarration)} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestManifestRoundTrip(t *testing.T) {
	l := NewLayout(t.TempDir())
	segs := []model.Segment{
		model.ImagePrompt("A desert."),
		model.Narration("Hello."),
		model.ImagePrompt("A city."),
		model.Narration(""),
	}
	counts := map[model.Kind]int{}
	for i := range segs {
		counts[segs[i].Kind]++
		segs[i].TypeIndex = counts[segs[i].Kind]
		segs[i].Ordinal = i
	}
	segs[0].Status = model.StatusSucceeded
	segs[0].OutputPath = l.AssetPath(model.KindImagePrompt, 1, "webp")
	segs[0].Attempts = 2
	segs[2].Status = model.StatusFailed
	segs[2].Reason = "retries_exhausted"
	segs[2].LastError = "HTTP 503"

	if err := l.SaveManifest(segs); err != nil {
		t.Fatalf("save manifest: %v", err)
	}
	got, err := l.LoadManifest()
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if len(got) != len(segs) {
		t.Fatalf("expected %d segments, got %d", len(segs), len(got))
	}
	for i := range segs {
		if got[i] != segs[i] {
			t.Fatalf("segment %d mismatch:\n got %+v\nwant %+v", i, got[i], segs[i])
		}
	}
}

func TestManifestKeepsLegacyShape(t *testing.T) {
	l := NewLayout(t.TempDir())
	segs := []model.Segment{model.Narration(""), model.ImagePrompt("sky")}
	segs[0].TypeIndex = 1
	segs[1].TypeIndex = 1
	if err := l.SaveManifest(segs); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(l.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{`"type": "text"`, `"content": ""`, `"type": "image"`, `"description": "sky"`} {
		if !strings.Contains(text, want) {
			t.Fatalf("manifest missing %s:\n%s", want, text)
		}
	}
}

func TestLoadManifestAcceptsLegacyEntries(t *testing.T) {
	l := NewLayout(t.TempDir())
	legacy := `[{"type":"image","description":"A desert."},{"type":"text","content":"Hello."},{"type":"video"},{"type":"image","description":"A city."}]`
	if err := os.WriteFile(l.ManifestPath(), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	segs, err := l.LoadManifest()
	if err != nil {
		t.Fatalf("load legacy manifest: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	if segs[2].Kind != model.KindImagePrompt || segs[2].TypeIndex != 2 || segs[2].Ordinal != 2 {
		t.Fatalf("unexpected third segment: %+v", segs[2])
	}
	if segs[1].Status != model.StatusPending {
		t.Fatalf("legacy entries should default to pending, got %q", segs[1].Status)
	}
}

func TestPersistAndLoadRun(t *testing.T) {
	l := NewLayout(filepath.Join(t.TempDir(), "1700000000"))
	segs := []model.Segment{model.ImagePrompt("a"), model.Narration("b")}
	segs[0].TypeIndex, segs[1].TypeIndex = 1, 1
	segs[1].Ordinal = 1
	segs[0].Status = model.StatusSucceeded
	run := model.NewRun("1700000000", l.BaseDir, segs)
	run.Source = "notes.txt"

	if err := l.Persist(run); err != nil {
		t.Fatalf("persist: %v", err)
	}
	got, err := l.LoadRun()
	if err != nil {
		t.Fatalf("load run: %v", err)
	}
	if got.ID != "1700000000" || got.Source != "notes.txt" {
		t.Fatalf("unexpected run meta: %+v", got)
	}
	if got.Summary.Image.Succeeded != 1 || got.Summary.Narration.Pending != 1 {
		t.Fatalf("unexpected summary: %+v", got.Summary)
	}
	if len(got.Segments) != 2 {
		t.Fatalf("expected segments to load, got %d", len(got.Segments))
	}
}

func TestWriteStreamLeavesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "images", "image_1.webp")
	if err := WriteStream(target, failingReader{}); err == nil {
		t.Fatal("expected stream write to fail")
	}
	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files after failed write, got %d", len(entries))
	}
}

func TestCommitFileRejectsEmptyOutput(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "narration_1.wav")
	tmp, err := TempPathFor(target)
	if err != nil {
		t.Fatal(err)
	}
	if !IsTempFile(tmp) || filepath.Ext(tmp) != ".wav" {
		t.Fatalf("unexpected temp path %s", tmp)
	}
	if err := CommitFile(tmp, target); err == nil {
		t.Fatal("expected empty temp file to be rejected")
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatalf("temp file should be removed, stat err=%v", err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("target should not exist, stat err=%v", err)
	}
}

func TestListRunDirsOrdersByCreation(t *testing.T) {
	runs := t.TempDir()
	for _, name := range []string{"1700000010", "999999999", "1700000010-ab12cd34", "1700000002"} {
		if err := Mkdir(filepath.Join(runs, name)); err != nil {
			t.Fatal(err)
		}
	}
	latest, err := LatestRunDir(runs)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(latest) != "1700000010-ab12cd34" {
		t.Fatalf("unexpected latest run: %s", latest)
	}
	dirs, err := ListRunDirs(runs)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(dirs[0]) != "999999999" {
		t.Fatalf("expected shortest id first, got %s", dirs[0])
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, os.ErrClosed }

func TestRemoveAssetsMatchesOnlyThatIndex(t *testing.T) {
	l := NewLayout(t.TempDir())
	if err := l.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"image_1.webp", "image_1.jpg", "image_12.webp", "image_2.webp"} {
		if err := os.WriteFile(filepath.Join(l.DirFor(model.KindImagePrompt), name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	n, err := l.RemoveAssets(model.KindImagePrompt, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removed files, got %d", n)
	}
	entries, err := os.ReadDir(l.DirFor(model.KindImagePrompt))
	if err != nil {
		t.Fatal(err)
	}
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	if strings.Join(left, ",") != "image_12.webp,image_2.webp" {
		t.Fatalf("unexpected remaining files: %v", left)
	}

	if n, err := l.RemoveAssets(model.KindNarration, 1); err != nil || n != 0 {
		t.Fatalf("removing a missing asset should be a no-op, got %d %v", n, err)
	}
}

func TestSweepTempFilesKeepsAssets(t *testing.T) {
	l := NewLayout(t.TempDir())
	if err := l.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	target := l.AssetPath(model.KindNarration, 1, "wav")
	tmp, err := TempPathFor(target)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := l.SweepTempFiles()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected one temp file swept, got %d", n)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatalf("temp file should be gone, stat err=%v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("asset must survive the sweep: %v", err)
	}
}
