// Command cdmount mounts a raw ISO 9660 image file with the cdfs driver
// and either lists a directory or streams a file's contents to stdout,
// reporting read progress (bytes copied out of the file's total) with a
// spinner when stdout is a terminal. It exists to give the driver a runnable CLI the way the
// teacher's isoview/isoextract do, backed by internal/filedevice instead
// of real optical hardware.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bgrewell/iso9660cd"
	"github.com/bgrewell/iso9660cd/internal/filedevice"
	"github.com/bgrewell/iso9660cd/pkg/logging"
	"github.com/bgrewell/usage"
	"github.com/theckman/yacspin"
	"golang.org/x/term"
)

func main() {
	u := usage.NewUsage(
		usage.WithApplicationName("cdmount"),
		usage.WithApplicationDescription("cdmount mounts a raw ISO 9660 image (with Rock Ridge and/or Joliet extensions) and lists a directory or reads out a file, exercising the cdfs read-only driver without real CD-ROM hardware."),
	)

	help := u.AddBooleanOption("h", "help", false, "Show this help message", "optional", nil)
	verbose := u.AddBooleanOption("v", "verbose", false, "Print debug/trace logging", "", nil)
	list := u.AddBooleanOption("l", "list", false, "List the directory at <path> instead of reading a file", "", nil)
	image := u.AddArgument(1, "image", "Path to the raw ISO 9660 image file", "")
	path := u.AddArgument(2, "path", "Path within the image to read or list", "/")
	parsed := u.Parse()

	if !parsed {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}
	if *help {
		u.PrintUsage()
		os.Exit(0)
	}
	if image == nil || *image == "" {
		u.PrintError(fmt.Errorf("path to the iso image must be provided"))
		os.Exit(1)
	}

	logLevel := 0
	if *verbose {
		logLevel = 2
	}
	log := logging.NewSimpleLogger(os.Stderr, logLevel, true)

	dev, err := filedevice.Open(*image)
	if err != nil {
		u.PrintError(err)
		os.Exit(1)
	}
	defer dev.Close()

	m := cdfs.New(dev, cdfs.WithLogger(logging.NewLogger(log)))
	defer m.Close()

	if *list {
		if err := runList(m, *path); err != nil {
			u.PrintError(err)
			os.Exit(1)
		}
		return
	}
	if err := runCat(m, *path); err != nil {
		u.PrintError(err)
		os.Exit(1)
	}
}

func runList(m *cdfs.Mount, path string) error {
	f, err := m.Open(path, cdfs.O_DIRECTORY)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	for {
		entry, err := f.Readdir()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading directory %s: %w", path, err)
		}
		kind := "file"
		size := fmt.Sprintf("%d", entry.Size)
		if entry.IsDir {
			kind = "dir"
			size = "-"
		}
		fmt.Printf("%-5s %10s  %s\n", kind, size, entry.Name)
	}
}

func runCat(m *cdfs.Mount, path string) error {
	f, err := m.Open(path, cdfs.O_RDONLY)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	total, err := f.Total()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	spinner := newProgressSpinner(total)
	if spinner != nil {
		_ = spinner.Start()
		defer func() { _ = spinner.Stop() }()
	}

	buf := make([]byte, 64*1024)
	var copied int64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
				return werr
			}
			copied += int64(n)
			if spinner != nil {
				_ = spinner.Message(fmt.Sprintf("%d/%d bytes", copied, total))
			}
		}
		if rerr != nil {
			return fmt.Errorf("reading %s: %w", path, rerr)
		}
		if n == 0 {
			return nil
		}
	}
}

// newProgressSpinner returns a spinner reporting cdmount's read progress,
// or nil when stdout is not a terminal (piped output should stay clean).
func newProgressSpinner(total int64) *yacspin.Spinner {
	if !term.IsTerminal(int(os.Stdout.Fd())) || total == 0 {
		return nil
	}
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[9],
		Suffix:          " reading",
		SuffixAutoColon: true,
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
	})
	if err != nil {
		return nil
	}
	return spinner
}
