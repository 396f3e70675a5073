// Package filefilter decides which files below a resource root a view may load.
package filefilter

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/denormal/go-gitignore"
	"github.com/rs/zerolog/log"
)

// Settings is the configurable part of a FileFilter.
type Settings struct {
	MaxFileSize           int64    `mapstructure:"max-file-size" yaml:"max-file-size"`
	ExcludeExts           []string `mapstructure:"exclude-exts" yaml:"exclude-exts,omitempty"`
	ExcludeDirs           []string `mapstructure:"exclude-dirs" yaml:"exclude-dirs,omitempty"`
	DisableGitIgnore      bool     `mapstructure:"disable-gitignore" yaml:"disable-gitignore"`
	DisableDefaultFilters bool     `mapstructure:"disable-default-filters" yaml:"disable-default-filters"`
	FilterBinaryFiles     bool     `mapstructure:"filter-binary-files" yaml:"filter-binary-files"`
}

func DefaultSettings() Settings {
	return Settings{MaxFileSize: DefaultMaxFileSize}
}

// Options turns the settings into filter options.
func (s Settings) Options() []FileFilterOption {
	return []FileFilterOption{
		WithMaxFileSize(s.MaxFileSize),
		WithExcludeExts(s.ExcludeExts),
		WithExcludeDirs(s.ExcludeDirs),
		WithDisableGitIgnore(s.DisableGitIgnore),
		WithDisableDefaultFilters(s.DisableDefaultFilters),
		WithFilterBinaryFiles(s.FilterBinaryFiles),
	}
}

const DefaultMaxFileSize = 10 * 1024 * 1024

type FileFilter struct {
	MaxFileSize           int64
	ExcludeExts           []string
	ExcludeDirs           []string
	ExcludeMatchFilenames []*regexp.Regexp
	GitIgnoreFilter       gitignore.GitIgnore
	DisableGitIgnore      bool
	DisableDefaultFilters bool
	FilterBinaryFiles     bool

	DefaultExcludedExts           []string
	DefaultExcludedDirs           []string
	DefaultExcludedMatchFilenames []*regexp.Regexp
}

type FileFilterOption func(*FileFilter)

func NewFileFilter(options ...FileFilterOption) *FileFilter {
	ff := &FileFilter{
		MaxFileSize:                   DefaultMaxFileSize,
		DefaultExcludedExts:           DefaultExcludedExts,
		DefaultExcludedDirs:           DefaultExcludedDirs,
		DefaultExcludedMatchFilenames: DefaultExcludedMatchFilenames,
	}
	for _, option := range options {
		option(ff)
	}
	return ff
}

// ForRoot builds a filter for root, picking up root/.gitignore when there is one.
func ForRoot(root string, options ...FileFilterOption) *FileFilter {
	ff := NewFileFilter(options...)
	if ff.DisableGitIgnore || ff.GitIgnoreFilter != nil {
		return ff
	}
	ignoreFile := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(ignoreFile); err != nil {
		return ff
	}
	gi, err := gitignore.NewFromFile(ignoreFile)
	if err != nil {
		log.Warn().Err(err).Str("component", "filefilter").Str("file", ignoreFile).Msg("could not parse .gitignore")
		return ff
	}
	ff.GitIgnoreFilter = gi
	return ff
}

func WithMaxFileSize(size int64) FileFilterOption {
	return func(ff *FileFilter) {
		if size > 0 {
			ff.MaxFileSize = size
		}
	}
}

func WithExcludeExts(exts []string) FileFilterOption {
	return func(ff *FileFilter) {
		ff.ExcludeExts = exts
	}
}

func WithExcludeDirs(dirs []string) FileFilterOption {
	return func(ff *FileFilter) {
		ff.ExcludeDirs = dirs
	}
}

func WithExcludeMatchFilenames(patterns []string) FileFilterOption {
	return func(ff *FileFilter) {
		ff.ExcludeMatchFilenames = compileRegexps(patterns)
	}
}

func WithGitIgnoreFilter(filter gitignore.GitIgnore) FileFilterOption {
	return func(ff *FileFilter) {
		ff.GitIgnoreFilter = filter
	}
}

func WithDisableGitIgnore(disable bool) FileFilterOption {
	return func(ff *FileFilter) {
		ff.DisableGitIgnore = disable
	}
}

func WithDisableDefaultFilters(disable bool) FileFilterOption {
	return func(ff *FileFilter) {
		ff.DisableDefaultFilters = disable
	}
}

func WithFilterBinaryFiles(filter bool) FileFilterOption {
	return func(ff *FileFilter) {
		ff.FilterBinaryFiles = filter
	}
}

var (
	DefaultExcludedExts = []string{
		".exe", ".dll", ".so", ".dylib",
		".db", ".sqlite", ".pem", ".key",
		".lock",
	}

	DefaultExcludedDirs = []string{
		".git", ".svn", ".hg", "node_modules", ".history", ".idea", ".vscode",
	}

	DefaultExcludedMatchFilenames = []*regexp.Regexp{
		regexp.MustCompile(`^\.env(\..*)?$`),
		regexp.MustCompile(`^\.gitignore$`),
		regexp.MustCompile(`.*-lock\.json$`),
		regexp.MustCompile(`^go\.sum$`),
		regexp.MustCompile(`^yarn\.lock$`),
		regexp.MustCompile(`^id_(rsa|dsa|ecdsa|ed25519)(_sk)?(\.pub)?$`),
		regexp.MustCompile(`^(known_hosts|authorized_keys)$`),
		regexp.MustCompile(`^\.(netrc|npmrc|pgpass)$`),
	}
)

// Allow reports whether name, a slash separated path inside fsys, may be served.
// Directories are never served.
func (ff *FileFilter) Allow(fsys fs.FS, name string) bool {
	if !fs.ValidPath(name) || name == "." {
		return false
	}
	st, err := fs.Stat(fsys, name)
	if err != nil || st.IsDir() {
		return false
	}

	dirs := strings.Split(path.Dir(name), "/")
	for _, d := range dirs {
		if ff.isExcludedDir(d) {
			return false
		}
	}

	base := path.Base(name)
	ext := strings.ToLower(path.Ext(name))
	if !ff.DisableDefaultFilters {
		for _, excludedExt := range ff.DefaultExcludedExts {
			if ext == excludedExt {
				return false
			}
		}
		for _, re := range ff.DefaultExcludedMatchFilenames {
			if re.MatchString(base) {
				return false
			}
		}
	}
	for _, excludedExt := range ff.ExcludeExts {
		if ext == strings.ToLower(excludedExt) {
			return false
		}
	}
	for _, re := range ff.ExcludeMatchFilenames {
		if re.MatchString(base) {
			return false
		}
	}

	if st.Size() > ff.MaxFileSize {
		return false
	}

	if !ff.DisableGitIgnore && ff.GitIgnoreFilter != nil && ff.ignored(name) {
		return false
	}

	if ff.FilterBinaryFiles {
		isBinary, err := isBinaryFile(fsys, name)
		if err != nil || isBinary {
			return false
		}
	}

	return true
}

// Contained reports whether name, a slash separated path below root, still resolves
// inside root once symlinks are followed. Missing files are not contained.
func Contained(root, name string) bool {
	if !fs.ValidPath(name) {
		return false
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false
	}
	target, err := filepath.EvalSymlinks(filepath.Join(root, filepath.FromSlash(name)))
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(realRoot, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// ignored checks name and each of its parent directories against the .gitignore rules.
func (ff *FileFilter) ignored(name string) bool {
	parts := strings.Split(name, "/")
	for i := 1; i <= len(parts); i++ {
		isDir := i < len(parts)
		match := ff.GitIgnoreFilter.Relative(filepath.FromSlash(strings.Join(parts[:i], "/")), isDir)
		if match != nil && match.Ignore() {
			return true
		}
	}
	return false
}

func (ff *FileFilter) isExcludedDir(dir string) bool {
	if dir == "." || dir == "" {
		return false
	}
	if !ff.DisableDefaultFilters {
		for _, excludedDir := range ff.DefaultExcludedDirs {
			if dir == excludedDir {
				return true
			}
		}
	}
	for _, excludedDir := range ff.ExcludeDirs {
		if dir == excludedDir {
			return true
		}
	}
	return false
}

// isBinaryFile looks for a NUL byte in the first 512 bytes.
func isBinaryFile(fsys fs.FS, name string) (bool, error) {
	file, err := fsys.Open(name)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = file.Close()
	}()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return false, err
	}
	return bytes.IndexByte(buffer[:n], 0) != -1, nil
}

func compileRegexps(patterns []string) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Warn().Err(err).Str("component", "filefilter").Str("pattern", p).Msg("skipping invalid pattern")
			continue
		}
		out = append(out, re)
	}
	return out
}
