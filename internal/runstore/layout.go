package runstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shorteezy/internal/model"
)

const (
	ImagesDirName     = "images"
	NarrationsDirName = "narrations"
	ManifestFileName  = "data.json"
	ScriptFileName    = "response.txt"
	RunMetaFileName   = "run.json"
	HandoffFileName   = "handoff.json"
	LogFileName       = "run.log"
)

// Layout maps a run's base directory to the files inside it. Every path is
// a pure function of the base directory and, for assets, the segment kind
// and type index.
type Layout struct {
	BaseDir string
}

func NewLayout(baseDir string) Layout {
	return Layout{BaseDir: filepath.Clean(baseDir)}
}

func (l Layout) DirFor(kind model.Kind) string {
	if kind == model.KindImagePrompt {
		return filepath.Join(l.BaseDir, ImagesDirName)
	}
	return filepath.Join(l.BaseDir, NarrationsDirName)
}

// AssetPath returns <base>/images/image_N.ext or <base>/narrations/narration_N.ext.
func (l Layout) AssetPath(kind model.Kind, typeIndex int, ext string) string {
	prefix := "narration"
	if kind == model.KindImagePrompt {
		prefix = "image"
	}
	name := fmt.Sprintf("%s_%d", prefix, typeIndex)
	if ext = strings.TrimPrefix(strings.TrimSpace(ext), "."); ext != "" {
		name += "." + ext
	}
	return filepath.Join(l.DirFor(kind), name)
}

// RemoveAssets deletes every file stored for the segment, whatever its
// extension, and returns how many were removed.
func (l Layout) RemoveAssets(kind model.Kind, typeIndex int) (int, error) {
	base := filepath.Base(l.AssetPath(kind, typeIndex, ""))
	dir := l.DirFor(kind)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || (name != base && !strings.HasPrefix(name, base+".")) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove stale asset: %w", err)
		}
		removed++
	}
	return removed, nil
}

// SweepTempFiles removes temp files left in the asset directories by an
// interrupted write. Callers must hold the run lock.
func (l Layout) SweepTempFiles() (int, error) {
	removed := 0
	for _, dir := range []string{l.DirFor(model.KindImagePrompt), l.DirFor(model.KindNarration)} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return removed, err
		}
		for _, e := range entries {
			if e.IsDir() || !IsTempFile(e.Name()) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func (l Layout) ManifestPath() string { return filepath.Join(l.BaseDir, ManifestFileName) }
func (l Layout) ScriptPath() string   { return filepath.Join(l.BaseDir, ScriptFileName) }
func (l Layout) RunMetaPath() string  { return filepath.Join(l.BaseDir, RunMetaFileName) }
func (l Layout) HandoffPath() string  { return filepath.Join(l.BaseDir, HandoffFileName) }
func (l Layout) LogPath() string      { return filepath.Join(l.BaseDir, LogFileName) }

// EnsureDirs creates the base, images and narrations directories. Calling
// it on an existing layout is a no-op.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.BaseDir, l.DirFor(model.KindImagePrompt), l.DirFor(model.KindNarration)} {
		if err := Mkdir(dir); err != nil {
			return err
		}
	}
	return nil
}

func (l Layout) SaveScript(text string) error {
	return WriteBytes(l.ScriptPath(), []byte(text))
}

func (l Layout) LoadScript() (string, error) {
	data, err := os.ReadFile(l.ScriptPath())
	if err != nil {
		return "", fmt.Errorf("read script %s: %w", l.ScriptPath(), err)
	}
	return string(data), nil
}

// Persist writes data.json and run.json for the run's current state.
func (l Layout) Persist(run *model.Run) error {
	if err := l.SaveManifest(run.Segments); err != nil {
		return err
	}
	return l.SaveRunMeta(run)
}

func (l Layout) SaveRunMeta(run *model.Run) error {
	meta := *run
	meta.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	meta.BaseDir = l.BaseDir
	return WriteJSON(l.RunMetaPath(), meta)
}

// LoadRun reads run.json and data.json. A missing run.json is tolerated so
// directories written by older tooling (data.json only) still load.
func (l Layout) LoadRun() (*model.Run, error) {
	segs, err := l.LoadManifest()
	if err != nil {
		return nil, err
	}
	run := &model.Run{}
	if err := ReadJSON(l.RunMetaPath(), run); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		run = model.NewRun(filepath.Base(l.BaseDir), l.BaseDir, nil)
	}
	run.BaseDir = l.BaseDir
	run.Segments = segs
	run.RecomputeSummary()
	return run, nil
}
