package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DirPublisher copies items into an outbox directory. A non-empty caption
// is written next to the file as <name>.txt.
type DirPublisher struct {
	Dir string
}

func (p *DirPublisher) Name() string { return KindDir }

func (p *DirPublisher) Publish(ctx context.Context, item Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("could not create outbox %s: %w", p.Dir, err)
	}

	name := filepath.Base(item.Path)
	target := filepath.Join(p.Dir, name)
	if err := copyFile(item.Path, target); err != nil {
		return err
	}

	if item.Caption != "" {
		sidecar := strings.TrimSuffix(target, filepath.Ext(target)) + ".txt"
		if err := os.WriteFile(sidecar, []byte(item.Caption+"\n"), 0o644); err != nil {
			return fmt.Errorf("could not write caption for %s: %w", name, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", src, err)
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("could not copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not write %s: %w", dst, err)
	}
	return os.Rename(tmp, dst)
}
