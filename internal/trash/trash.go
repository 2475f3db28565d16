// Package trash moves files to the desktop trash instead of deleting them.
//
// On Linux and the BSDs it uses the freedesktop.org home trash layout
// (files/ plus info/*.trashinfo under the home trash). On macOS files are
// moved into ~/.Trash. On 64-bit Windows they go to the Recycle Bin through
// the shell, so they can be restored from Explorer. Other platforms report
// ErrUnsupportedPlatform.
package trash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Static errors for trash operations.
var (
	// ErrUnsupportedPlatform is returned when no trash location is known.
	ErrUnsupportedPlatform = errors.New("trash is not supported on this platform")
	// ErrNotExist is returned when the file to trash does not exist.
	ErrNotExist = errors.New("file does not exist")
)

// Layout selects how the trash directory is organised.
type Layout int

const (
	// LayoutFreedesktop stores files/ and info/ side by side.
	LayoutFreedesktop Layout = iota
	// LayoutFlat stores files directly in the trash directory (macOS).
	LayoutFlat
	// LayoutRecycleBin hands files to the Windows shell. There is no
	// directory to manage.
	LayoutRecycleBin
)

// Replaceable for tests that need to simulate EXDEV.
var renameFunc = os.Rename

// recycleBin sends an absolute path to the system recycle bin. It is set on
// platforms that have one and nil elsewhere.
var recycleBin func(abs string) error

// Trasher moves files into a trash directory.
type Trasher struct {
	dir    string
	layout Layout
	now    func() time.Time
}

// New returns a Trasher rooted at dir. An empty dir selects the platform
// default, which is the Recycle Bin on Windows. A Trasher is still returned
// when the platform has no trash; every Trash call then fails with
// ErrUnsupportedPlatform.
func New(dir string) *Trasher {
	t := &Trasher{dir: dir, layout: LayoutFreedesktop, now: time.Now}
	if runtime.GOOS == "darwin" {
		t.layout = LayoutFlat
	}
	if t.dir == "" {
		if recycleBin != nil {
			t.layout = LayoutRecycleBin
			return t
		}
		t.dir, _ = DefaultDir()
	}
	return t
}

// NewWithLayout returns a Trasher with an explicit layout.
func NewWithLayout(dir string, layout Layout) *Trasher {
	return &Trasher{dir: dir, layout: layout, now: time.Now}
}

// Dir returns the trash root. It is empty for the Recycle Bin and when
// the platform has no trash.
func (t *Trasher) Dir() string {
	return t.dir
}

// Available reports whether Trash can move files anywhere.
func (t *Trasher) Available() bool {
	return t.dir != "" || (t.layout == LayoutRecycleBin && recycleBin != nil)
}

// DefaultDir returns the home trash directory of the current user.
// Windows has no such directory; New uses the Recycle Bin there instead.
func DefaultDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home: %w", err)
		}
		return filepath.Join(home, ".Trash"), nil
	case "windows", "plan9", "js", "wasip1", "ios", "android":
		return "", ErrUnsupportedPlatform
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" && filepath.IsAbs(xdg) {
			return filepath.Join(xdg, "Trash"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home: %w", err)
		}
		return filepath.Join(home, ".local", "share", "Trash"), nil
	}
}

// Dispose moves path to the trash. It satisfies the composer's disposer.
func (t *Trasher) Dispose(_ context.Context, path string) error {
	_, err := t.Trash(path)
	return err
}

// Trash moves path into the trash and returns its new location. The
// location is empty for the Recycle Bin, which does not expose one.
func (t *Trasher) Trash(path string) (string, error) {
	if !t.Available() {
		return "", ErrUnsupportedPlatform
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if _, err := os.Lstat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotExist, abs)
		}
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}

	switch t.layout {
	case LayoutRecycleBin:
		if err := recycleBin(abs); err != nil {
			return "", fmt.Errorf("move to recycle bin: %w", err)
		}
		return "", nil
	case LayoutFlat:
		return t.trashFlat(abs)
	default:
		return t.trashFreedesktop(abs)
	}
}

func (t *Trasher) trashFlat(abs string) (string, error) {
	if err := os.MkdirAll(t.dir, 0o700); err != nil {
		return "", fmt.Errorf("create trash directory: %w", err)
	}

	base := filepath.Base(abs)
	for i := 1; ; i++ {
		dst := filepath.Join(t.dir, candidateName(base, i))
		if _, err := os.Lstat(dst); err == nil {
			continue
		}
		if err := move(abs, dst); err != nil {
			return "", err
		}
		return dst, nil
	}
}

func (t *Trasher) trashFreedesktop(abs string) (string, error) {
	filesDir := filepath.Join(t.dir, "files")
	infoDir := filepath.Join(t.dir, "info")
	for _, d := range []string{filesDir, infoDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return "", fmt.Errorf("create trash directory: %w", err)
		}
	}

	base := filepath.Base(abs)
	info := trashInfo(abs, t.now())

	for i := 1; ; i++ {
		name := candidateName(base, i)
		infoPath := filepath.Join(infoDir, name+".trashinfo")

		// The info file reserves the name; O_EXCL makes this atomic.
		f, err := os.OpenFile(infoPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", fmt.Errorf("create trash info: %w", err)
		}
		_, werr := io.WriteString(f, info)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			_ = os.Remove(infoPath)
			return "", fmt.Errorf("write trash info: %w", errors.Join(werr, cerr))
		}

		dst := filepath.Join(filesDir, name)
		if _, err := os.Lstat(dst); err == nil {
			// Orphaned file without info; keep looking.
			_ = os.Remove(infoPath)
			continue
		}
		if err := move(abs, dst); err != nil {
			_ = os.Remove(infoPath)
			return "", err
		}
		return dst, nil
	}
}

// candidateName returns base for the first attempt and "stem.N.ext" after.
func candidateName(base string, attempt int) string {
	if attempt <= 1 {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return stem + "." + strconv.Itoa(attempt) + ext
}

// trashInfo renders a .trashinfo file body.
func trashInfo(abs string, at time.Time) string {
	escaped := (&url.URL{Path: filepath.ToSlash(abs)}).EscapedPath()
	return fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n", escaped, at.Format("2006-01-02T15:04:05"))
}

// move renames src to dst, copying across filesystems when rename
// reports EXDEV.
func move(src, dst string) error {
	err := renameFunc(src, dst)
	if err == nil {
		return nil
	}
	if !isEXDEV(err) {
		return fmt.Errorf("move to trash: %w", err)
	}
	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("copy to trash: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove after copy: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - src is a derived file owned by the caller
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
