package steps

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"

	"github.com/yehorDorosh/mne-travel/pkg/buildlog"
	"github.com/yehorDorosh/mne-travel/pkg/fileset"
)

// Compress writes pre-compressed .br and/or .gz copies next to the matched files
type Compress struct {
	Src     []string
	Formats []string
}

func (s *Compress) Name() string {
	return "compress " + strings.Join(s.Src, " ") + " (" + strings.Join(s.Formats, ", ") + ")"
}

func (s *Compress) Run(ctx context.Context, env *Env) error {
	for _, format := range s.Formats {
		if format != "br" && format != "gz" {
			return eris.Errorf("unsupported compression format %q (supported: br, gz)", format)
		}
	}

	files, err := fileset.Files(s.Src, time.Time{})
	if err != nil {
		return err
	}

	count := 0
	for _, file := range files {
		if strings.HasSuffix(file, ".br") || strings.HasSuffix(file, ".gz") {
			continue
		}

		for _, format := range s.Formats {
			if err := compressFile(file, format); err != nil {
				return err
			}
			count++
		}
	}

	buildlog.Log(ctx).Info().Msgf("Wrote %d compressed file(s)", count)
	return nil
}

func compressFile(file, format string) error {
	in, err := os.Open(file)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", file)
	}
	defer in.Close()

	dest := file + "." + format
	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}
	defer out.Close()

	var writer io.WriteCloser
	if format == "br" {
		writer = brotli.NewWriterLevel(out, brotli.BestCompression)
	} else {
		writer, err = gzip.NewWriterLevel(out, gzip.BestCompression)
		if err != nil {
			return err
		}
	}

	if _, err := io.Copy(writer, in); err != nil {
		writer.Close()
		return eris.Wrapf(err, "failed to compress %s", file)
	}

	if err := writer.Close(); err != nil {
		return eris.Wrapf(err, "failed to finish %s", dest)
	}
	return eris.Wrapf(out.Close(), "failed to close %s", dest)
}
