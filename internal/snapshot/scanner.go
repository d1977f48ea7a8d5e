package snapshot

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"codegraph/internal/extract"
	"codegraph/internal/logging"
)

// defaultDenylist names directories never worth walking, independent
// of gitignore.
var defaultDenylist = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"vendor",
	"bower_components",
	"dist",
	"build",
	"out",
	"target",
	"__pycache__",
	".pytest_cache",
	".mypy_cache",
	".tox",
	".cache",
	".idea",
	".vscode",
	".vs",
	".codegraph",
}

// Scanner walks a workspace root collecting supported source files.
// Gitignore rules are honored when a .gitignore exists at the root.
type Scanner struct {
	Denylist      []string
	IncludeHidden bool

	log *slog.Logger
}

func NewScanner() *Scanner {
	return &Scanner{
		Denylist: defaultDenylist,
		log:      logging.Default("snapshot"),
	}
}

// Denied reports whether a directory name is on the denylist.
func (s *Scanner) Denied(name string) bool {
	for _, d := range s.Denylist {
		if d == name {
			return true
		}
	}
	return false
}

// Scan builds a snapshot of every supported source file under root.
// Symlinks are skipped to avoid cycles. Unreadable entries are logged
// and skipped rather than failing the pass.
func (s *Scanner) Scan(ctx context.Context, root string) (*Snapshot, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var matcher *ignore.GitIgnore
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(absRoot, ".gitignore")); err == nil {
		matcher = gi
	}

	snap := &Snapshot{
		Root:     absRoot,
		Files:    make(map[string]*FileMeta),
		ScanTime: time.Now(),
	}

	denied := make(map[string]bool, len(s.Denylist))
	for _, name := range s.Denylist {
		denied[name] = true
	}

	err = filepath.WalkDir(absRoot, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			s.log.Warn("skipping unreadable entry", slog.String("path", path), slog.Any("error", walkErr))
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == absRoot {
			return nil
		}

		name := entry.Name()
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if denied[name] {
				return filepath.SkipDir
			}
			if !s.IncludeHidden && name[0] == '.' {
				return filepath.SkipDir
			}
			if matcher != nil && matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if entry.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if !s.IncludeHidden && name[0] == '.' {
			return nil
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}

		lang, ok := extract.LanguageForFile(name)
		if !ok {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}

		snap.Files[rel] = &FileMeta{
			Path:       rel,
			Language:   lang,
			Size:       info.Size(),
			MTimeNanos: info.ModTime().UnixNano(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("scan complete",
		slog.String("root", absRoot),
		slog.Int("files", snap.FileCount()))
	return snap, nil
}
