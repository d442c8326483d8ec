package pattern

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/romdo/go-debounce"

	"github.com/roundslab/rounds/engine/core"
	"github.com/roundslab/rounds/pkg/logger"
)

//go:embed defaults.yaml
var defaultTableYAML []byte

const (
	reloadDebounceWait = 200 * time.Millisecond
	reloadMaxWait      = time.Second
)

// Config locates pattern override files. Paths are doublestar globs
// resolved relative to Root; both may be empty, in which case only the
// embedded defaults load.
type Config struct {
	Root  string
	Paths []string
}

// Table serves immutable snapshots of the pattern set and reloads them from
// disk when override files change. Turns hold one snapshot for their whole
// lifetime, so a reload never changes a running turn's termination rules.
type Table struct {
	cfg       Config
	evaluator *Evaluator
	validate  *validator.Validate
	current   atomic.Pointer[Snapshot]
}

// Snapshot is the pattern set a single turn runs against.
type Snapshot struct {
	patterns  []Pattern
	evaluator *Evaluator
}

// Analysis is what the router and selector consume for one query.
type Analysis struct {
	Entities Entities
	Pattern  *Pattern
}

// Matched reports whether any row recognized the query.
func (a Analysis) Matched() bool {
	return a.Pattern != nil
}

// PatternName returns the matched row's name, or empty when none matched.
func (a Analysis) PatternName() string {
	if a.Pattern == nil {
		return ""
	}
	return a.Pattern.Name
}

// RequiredCategories returns the tool categories a complete answer needs,
// or nil when no row matched.
func (a Analysis) RequiredCategories() []string {
	if a.Pattern == nil {
		return nil
	}
	return slices.Clone(a.Pattern.Require)
}

type tableFile struct {
	Patterns []Pattern `yaml:"patterns"`
}

// NewTable loads the embedded defaults plus any configured override files.
func NewTable(ctx context.Context, cfg Config) (*Table, error) {
	evaluator, err := NewEvaluator()
	if err != nil {
		return nil, err
	}
	validate := validator.New()
	if err := RegisterValidators(validate); err != nil {
		return nil, fmt.Errorf("failed to register pattern validators: %w", err)
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	t := &Table{cfg: cfg, evaluator: evaluator, validate: validate}
	if err := t.Reload(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Snapshot returns the pattern set in effect right now.
func (t *Table) Snapshot() *Snapshot {
	return t.current.Load()
}

// Reload re-reads defaults and override files and swaps the snapshot in
// atomically. On error the previous snapshot stays in effect.
func (t *Table) Reload(ctx context.Context) error {
	patterns, err := t.loadPatterns(ctx)
	if err != nil {
		return err
	}
	t.current.Store(&Snapshot{patterns: patterns, evaluator: t.evaluator})
	logger.FromContext(ctx).Debug("pattern table loaded", "patterns", len(patterns))
	return nil
}

func (t *Table) loadPatterns(ctx context.Context) ([]Pattern, error) {
	defaults, err := t.parseFile("defaults.yaml", defaultTableYAML)
	if err != nil {
		return nil, err
	}
	files, err := t.discoverFiles()
	if err != nil {
		return nil, err
	}
	patterns := defaults
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, core.NewError(err, "PATTERN_FILE_UNREADABLE", map[string]any{"file": file})
		}
		loaded, err := t.parseFile(file, data)
		if err != nil {
			return nil, err
		}
		patterns = mergePatterns(patterns, loaded)
	}
	return patterns, nil
}

func (t *Table) parseFile(name string, data []byte) ([]Pattern, error) {
	var file tableFile
	if err := yaml.UnmarshalWithOptions(data, &file, yaml.Strict()); err != nil {
		return nil, core.NewError(err, "PATTERN_FILE_INVALID", map[string]any{"file": name})
	}
	seen := make(map[string]bool, len(file.Patterns))
	for i := range file.Patterns {
		p := &file.Patterns[i]
		if err := p.Validate(t.validate); err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, core.NewError(nil, "DUPLICATE_PATTERN", map[string]any{"file": name, "pattern": p.Name})
		}
		seen[p.Name] = true
		if p.When != "" {
			if err := t.evaluator.Check(p.When); err != nil {
				return nil, core.NewError(err, "PATTERN_PREDICATE_INVALID", map[string]any{
					"file":    name,
					"pattern": p.Name,
				})
			}
		}
	}
	return file.Patterns, nil
}

// mergePatterns applies override rows: same name replaces in place so the
// default ordering survives, new names append after the defaults.
func mergePatterns(base, overrides []Pattern) []Pattern {
	index := make(map[string]int, len(base))
	for i := range base {
		index[base[i].Name] = i
	}
	for _, override := range overrides {
		if i, ok := index[override.Name]; ok {
			base[i] = override
			continue
		}
		index[override.Name] = len(base)
		base = append(base, override)
	}
	return base
}

func (t *Table) discoverFiles() ([]string, error) {
	found := make(map[string]bool)
	for _, glob := range t.cfg.Paths {
		if err := validateGlob(glob); err != nil {
			return nil, err
		}
		matches, err := doublestar.FilepathGlob(filepath.Join(t.cfg.Root, glob))
		if err != nil {
			return nil, fmt.Errorf("invalid pattern glob %q: %w", glob, err)
		}
		for _, match := range matches {
			rel, err := filepath.Rel(t.cfg.Root, match)
			if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
				return nil, core.NewError(nil, "PATH_ESCAPE_ATTEMPT", map[string]any{
					"file": match,
					"root": t.cfg.Root,
				})
			}
			found[match] = true
		}
	}
	files := make([]string, 0, len(found))
	for file := range found {
		files = append(files, file)
	}
	sort.Strings(files)
	return files, nil
}

func validateGlob(glob string) error {
	clean := filepath.Clean(glob)
	if filepath.IsAbs(clean) {
		return fmt.Errorf("INVALID_PATTERN_GLOB: absolute paths not allowed: %s", glob)
	}
	if slices.Contains(strings.Split(clean, string(filepath.Separator)), "..") {
		return fmt.Errorf("INVALID_PATTERN_GLOB: parent directory references not allowed: %s", glob)
	}
	return nil
}

// Watch reloads the table when override files change, debouncing bursts of
// events. It returns once the watcher is installed and stops when ctx is
// canceled. Reload failures keep the previous snapshot.
func (t *Table) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create pattern watcher: %w", err)
	}
	dirs, err := t.watchDirs()
	if err != nil {
		watcher.Close()
		return err
	}
	log := logger.FromContext(ctx)
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			log.Warn("failed to watch pattern directory", "path", dir, "error", err)
		}
	}
	reload, cancelReload := debounce.NewWithMaxWait(reloadDebounceWait, reloadMaxWait, func() {
		if err := t.Reload(ctx); err != nil {
			log.Warn("pattern reload failed, keeping previous table", "error", err)
		}
	})
	go func() {
		defer cancelReload()
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if isPatternFile(event.Name) &&
					(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
						event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
					reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error("pattern watcher error", "error", err)
			}
		}
	}()
	log.Debug("pattern watcher installed", "directories", len(dirs))
	return nil
}

func (t *Table) watchDirs() ([]string, error) {
	files, err := t.discoverFiles()
	if err != nil {
		return nil, err
	}
	set := map[string]bool{t.cfg.Root: true}
	for _, file := range files {
		set[filepath.Dir(file)] = true
	}
	dirs := make([]string, 0, len(set))
	for dir := range set {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs, nil
}

func isPatternFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Analyze extracts entities and finds the first matching row. Predicate
// failures skip the row instead of failing the turn; a broken override file
// must not take the engine down.
func (s *Snapshot) Analyze(ctx context.Context, query string, attachmentCount int) Analysis {
	entities := Extract(query)
	analysis := Analysis{Entities: entities}
	lowered := strings.ToLower(query)
	data := map[string]any{
		"query":            lowered,
		"entities":         entities.celContext(),
		"attachment_count": attachmentCount,
	}
	for i := range s.patterns {
		p := &s.patterns[i]
		if !p.matchesSignals(lowered, entities) {
			continue
		}
		if p.When != "" {
			ok, err := s.evaluator.Evaluate(ctx, p.When, data)
			if err != nil {
				logger.FromContext(ctx).Warn("pattern predicate failed, skipping row",
					"pattern", p.Name, "error", err)
				continue
			}
			if !ok {
				continue
			}
		}
		analysis.Pattern = p
		break
	}
	return analysis
}

// Patterns returns a copy of the snapshot's rows in evaluation order.
func (s *Snapshot) Patterns() []Pattern {
	return slices.Clone(s.patterns)
}
