package xlsx

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// ErrNotFound is reported when a file is not a spreadsheet archive or holds
// no worksheet parts.
var ErrNotFound = errors.New("worksheet parts not found")

// WorksheetsDir is the conventional location of worksheet parts inside an
// .xlsx archive.
const WorksheetsDir = "xl/worksheets"

// member describes one part of the original archive.
type member struct {
	name     string
	method   uint16
	modified time.Time
	dir      bool
}

// Archive is a spreadsheet archive unpacked into a private scratch
// directory. Callers must Close it to release the directory.
type Archive struct {
	// Path is the archive the parts were extracted from.
	Path string
	// Dir holds the extracted parts under their member names.
	Dir string

	members []member
}

// Extract unpacks every member of the archive at path into a new scratch
// directory created under tempRoot ("" means os.TempDir()).
func Extract(path, tempRoot string) (*Archive, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("could not open %s: %w", path, err)
		}
		return nil, fmt.Errorf("%w: %s is not a valid .xlsx archive: %v", ErrNotFound, path, err)
	}
	defer r.Close()

	dir, err := os.MkdirTemp(tempRoot, "pricekit-xlsx-*")
	if err != nil {
		return nil, fmt.Errorf("could not create scratch directory: %w", err)
	}

	a := &Archive{Path: path, Dir: dir}
	if err := a.unpack(r.File); err != nil {
		a.Close()
		return nil, err
	}

	if info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(WorksheetsDir))); err != nil || !info.IsDir() {
		a.Close()
		return nil, fmt.Errorf("%w: %s has no %s/ directory", ErrNotFound, path, WorksheetsDir)
	}

	return a, nil
}

func (a *Archive) unpack(files []*zip.File) error {
	for _, f := range files {
		rel := filepath.FromSlash(strings.TrimSuffix(f.Name, "/"))
		if rel == "" || !filepath.IsLocal(rel) {
			return fmt.Errorf("%w: unsafe member name %q in %s", ErrNotFound, f.Name, a.Path)
		}
		target := filepath.Join(a.Dir, rel)

		if strings.HasSuffix(f.Name, "/") {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("could not create %s: %w", rel, err)
			}
			a.members = append(a.members, member{name: f.Name, modified: f.Modified, dir: true})
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("could not create directory for %s: %w", rel, err)
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
		a.members = append(a.members, member{name: f.Name, method: f.Method, modified: f.Modified})
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: could not open %s in archive: %v", ErrNotFound, f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("could not extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// Members returns the member names of the original archive, in order.
func (a *Archive) Members() []string {
	names := make([]string, len(a.members))
	for i, m := range a.members {
		names[i] = m.name
	}
	return names
}

// Repack writes every file under the scratch directory into a new archive at
// target. Parts that came from the original archive keep their order,
// compression method and modification time; anything else is appended in
// directory-walk order and deflated.
func (a *Archive) Repack(target string) error {
	known := make(map[string]int, len(a.members))
	for i, m := range a.members {
		known[m.name] = i
	}

	var names []string
	err := filepath.WalkDir(a.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(a.Dir, path)
		if err != nil || rel == "." {
			return err
		}
		name := filepath.ToSlash(rel)
		if d.IsDir() {
			if _, ok := known[name+"/"]; ok {
				names = append(names, name+"/")
			}
			return nil
		}
		names = append(names, name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not walk %s: %w", a.Dir, err)
	}

	sort.SliceStable(names, func(i, j int) bool {
		pi, iok := known[names[i]]
		pj, jok := known[names[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return false
		}
	})

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", target, err)
	}
	zw := zip.NewWriter(out)

	for _, name := range names {
		header := &zip.FileHeader{Name: name, Method: zip.Deflate}
		if i, ok := known[name]; ok {
			m := a.members[i]
			if m.method == zip.Store {
				header.Method = zip.Store
			}
			header.Modified = m.modified
		}
		if err := writeMember(zw, header, filepath.Join(a.Dir, filepath.FromSlash(strings.TrimSuffix(name, "/")))); err != nil {
			zw.Close()
			out.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("could not finalize %s: %w", target, err)
	}
	return out.Close()
}

func writeMember(zw *zip.Writer, header *zip.FileHeader, path string) error {
	if strings.HasSuffix(header.Name, "/") {
		header.Method = zip.Store
		_, err := zw.CreateHeader(header)
		return err
	}

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("could not create %s in output: %w", header.Name, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", header.Name, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("could not write %s: %w", header.Name, err)
	}
	return nil
}

// Close removes the scratch directory.
func (a *Archive) Close() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	err := os.RemoveAll(a.Dir)
	a.Dir = ""
	return err
}
