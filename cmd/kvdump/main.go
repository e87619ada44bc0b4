// Command kvdump backs up or restores an engine's on-disk directory as a
// single gzip-compressed tar archive. It operates purely on files — it
// never opens the engine, so it is safe to run against a directory that is
// also being served, as long as no compaction is in flight.
package main

import (
	"archive/tar"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "dump":
		runDump(os.Args[2:])
	case "restore":
		runRestore(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kvdump dump -data-dir DIR -out FILE.tar.gz")
	fmt.Fprintln(os.Stderr, "       kvdump restore -archive FILE.tar.gz -data-dir DIR")
}

func runDump(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./data", "Engine directory to archive")
	out := fs.String("out", "backup.tar.gz", "Output archive path")
	fs.Parse(args)

	if err := dump(*dataDir, *out); err != nil {
		fmt.Fprintf(os.Stderr, "dump failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}

func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	archive := fs.String("archive", "backup.tar.gz", "Archive to restore from")
	dataDir := fs.String("data-dir", "./data", "Directory to restore into")
	fs.Parse(args)

	if err := restore(*archive, *dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("restored into %s\n", *dataDir)
}

// dump walks dataDir and writes every regular file into a gzip-compressed
// tar archive, relative paths preserved.
func dump(dataDir, out string) error {
	archiveFile, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer archiveFile.Close()

	gz := gzip.NewWriter(archiveFile)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	return filepath.Walk(dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("failed to build tar header for %s: %w", path, err)
		}
		header.Name = rel

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header for %s: %w", path, err)
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()

		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("failed to copy %s into archive: %w", path, err)
		}
		return nil
	})
}

// restore extracts archive into dataDir, creating it if necessary. It
// refuses to follow any entry that would escape dataDir.
func restore(archive, dataDir string) error {
	archiveFile, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	gz, err := gzip.NewReader(archiveFile)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		target := filepath.Join(dataDir, header.Name)
		if !isWithinDir(dataDir, target) {
			return fmt.Errorf("archive entry %q escapes data directory", header.Name)
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", target, err)
		}

		f, err := os.Create(target)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", target, err)
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
		f.Close()
	}
}

func isWithinDir(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	parent := ".." + string(filepath.Separator)
	escapes := len(rel) >= len(parent) && rel[:len(parent)] == parent
	return rel != ".." && !filepath.IsAbs(rel) && len(rel) > 0 && !escapes
}
