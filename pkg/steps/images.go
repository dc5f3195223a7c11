package steps

import (
	"bytes"
	"context"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/yehorDorosh/mne-travel/pkg/buildlog"
	"github.com/yehorDorosh/mne-travel/pkg/fileset"
)

// Images optimizes raster and vector images.
//
// PNG and JPEG files wider than MaxWidth are scaled down. In production they are re-encoded
// (JPEG with Quality, PNG with the best compression level) and the smaller of the original and
// the re-encoded file is kept. BMP and TIFF sources are converted to PNG, SVG files are minified
// in production and everything else is copied.
type Images struct {
	Src          []string
	Dest         string
	Base         string
	SinceLastRun bool
	MaxWidth     int
	Quality      int
	Workers      int
}

type imageStats struct {
	files  int64
	before int64
	after  int64
}

func (s *Images) Name() string {
	return "images " + strings.Join(s.Src, " ") + " -> " + s.Dest
}

func (s *Images) Run(ctx context.Context, env *Env) error {
	files, err := fileset.Files(s.Src, since(env, s.SinceLastRun))
	if err != nil {
		return err
	}

	workers := s.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("images"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetVisibility(!env.Quiet && os.Getenv("CI") != "true" && len(files) > 0),
		progressbar.OptionClearOnFinish(),
	)

	stats := &imageStats{}
	base := baseDir(s.Base, s.Src)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			dest, err := fileset.Dest(file, base, s.Dest)
			if err != nil {
				return err
			}

			if err := s.process(gctx, env, file, dest, stats); err != nil {
				return eris.Wrapf(err, "failed to process %s", relPath(env, file))
			}
			return bar.Add(1)
		})
	}

	err = g.Wait()
	bar.Finish()
	if err != nil {
		return err
	}

	buildlog.Log(ctx).Info().
		Int64("before", stats.before).
		Int64("after", stats.after).
		Msgf("Processed %d image(s) into %s", stats.files, relPath(env, s.Dest))
	return nil
}

func (s *Images) process(ctx context.Context, env *Env, file, dest string, stats *imageStats) error {
	content, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	output, dest, err := s.optimize(ctx, env, content, dest)
	if err != nil {
		return err
	}

	atomic.AddInt64(&stats.files, 1)
	atomic.AddInt64(&stats.before, int64(len(content)))
	atomic.AddInt64(&stats.after, int64(len(output)))

	if len(output) != len(content) {
		buildlog.Log(ctx).Debug().Str("path", file).Msgf("%s: %d -> %d bytes", relPath(env, file), len(content), len(output))
	}
	return writeFile(dest, output, 0o644)
}

// optimize returns the output content and its (possibly renamed) destination
func (s *Images) optimize(ctx context.Context, env *Env, content []byte, dest string) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(dest))

	switch ext {
	case ".svg":
		if env.Development {
			return content, dest, nil
		}

		minified, err := getMinifier().Bytes(mediaSVG, content)
		if err != nil {
			return nil, "", err
		}
		return smaller(content, minified), dest, nil
	case ".bmp", ".tif", ".tiff":
		var img image.Image
		var err error
		if ext == ".bmp" {
			img, err = bmp.Decode(bytes.NewReader(content))
		} else {
			img, err = tiff.Decode(bytes.NewReader(content))
		}
		if err != nil {
			return nil, "", err
		}

		encoded, err := s.encodePNG(s.scale(img))
		if err != nil {
			return nil, "", err
		}
		return encoded, strings.TrimSuffix(dest, filepath.Ext(dest)) + ".png", nil
	case ".webp":
		cfg, err := webp.DecodeConfig(bytes.NewReader(content))
		if err != nil {
			return nil, "", err
		}

		if s.MaxWidth > 0 && cfg.Width > s.MaxWidth {
			buildlog.Log(ctx).Warn().Msgf("%s is %dpx wide but WebP images can't be re-encoded, copying it as is", relPath(env, dest), cfg.Width)
		}
		return content, dest, nil
	case ".png", ".jpg", ".jpeg":
		cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
		if err != nil {
			return nil, "", err
		}

		resize := s.MaxWidth > 0 && cfg.Width > s.MaxWidth
		if env.Development && !resize {
			return content, dest, nil
		}

		var img image.Image
		if ext == ".png" {
			img, err = png.Decode(bytes.NewReader(content))
		} else {
			img, err = jpeg.Decode(bytes.NewReader(content))
		}
		if err != nil {
			return nil, "", err
		}

		img = s.scale(img)

		var encoded []byte
		if ext == ".png" {
			encoded, err = s.encodePNG(img)
		} else {
			encoded, err = s.encodeJPEG(img)
		}
		if err != nil {
			return nil, "", err
		}

		if resize {
			return encoded, dest, nil
		}
		return smaller(content, encoded), dest, nil
	case ".gif":
		// animated GIFs would lose their frames when re-encoded, so only validate them
		if _, err := gif.DecodeConfig(bytes.NewReader(content)); err != nil {
			return nil, "", err
		}
		return content, dest, nil
	}

	return content, dest, nil
}

func (s *Images) scale(img image.Image) image.Image {
	bounds := img.Bounds()
	if s.MaxWidth <= 0 || bounds.Dx() <= s.MaxWidth {
		return img
	}

	height := bounds.Dy() * s.MaxWidth / bounds.Dx()
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, s.MaxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func (s *Images) encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Images) encodeJPEG(img image.Image) ([]byte, error) {
	quality := s.Quality
	if quality < 1 || quality > 100 {
		quality = 80
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func smaller(original, optimized []byte) []byte {
	if len(optimized) < len(original) {
		return optimized
	}
	return original
}
