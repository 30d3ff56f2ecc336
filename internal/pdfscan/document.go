// Package pdfscan reads the pages of an uploaded PDF: the QR codes printed
// in its embedded images and its text.
package pdfscan

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/serrors"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
	"golang.org/x/image/tiff"
)

// Document is an opened PDF.
type Document struct {
	ctx      *model.Context
	detector Detector
}

// Open reads and validates the PDF at path. QR codes are decoded with
// detector.
func Open(path string, detector Detector) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open pdf: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	return Read(f, detector)
}

// Read parses a PDF from rs.
func Read(rs io.ReadSeeker, detector Detector) (*Document, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadValidateAndOptimize(rs, conf)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrBadRequest, err, "could not read pdf")
	}

	return &Document{ctx: ctx, detector: detector}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return d.ctx.PageCount }

// QRCodes returns the distinct values of the QR codes found in the images of
// page pageNr, in detection order. Images that cannot be decoded are skipped.
func (d *Document) QRCodes(ctx context.Context, pageNr int) ([]string, error) {
	images, err := pdfcpu.ExtractPageImages(d.ctx, pageNr, false)
	if err != nil {
		return nil, fmt.Errorf("could not extract images of page %d: %w", pageNr, err)
	}

	var out []string
	seen := map[string]bool{}
	for objNr, img := range images {
		decoded, err := decodeImage(img)
		if err != nil {
			logger.Debug(ctx, "skipping undecodable image",
				zap.Int("page", pageNr), zap.Int("objNr", objNr), zap.Error(err))

			continue
		}
		for _, v := range d.detector.Detect(decoded) {
			if v = strings.TrimSpace(v); v != "" && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}

	return out, nil
}

// Text returns the text of page pageNr, one line per text line.
func (d *Document) Text(pageNr int) (string, error) {
	r, err := pdfcpu.ExtractPageContent(d.ctx, pageNr)
	if err != nil {
		return "", fmt.Errorf("could not extract content of page %d: %w", pageNr, err)
	}
	if r == nil {
		return "", nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("could not read content of page %d: %w", pageNr, err)
	}

	return strings.Join(ContentLines(data), "\n"), nil
}

// Close releases the document.
func (d *Document) Close() error { return nil }

func decodeImage(img model.Image) (image.Image, error) {
	var (
		decoded image.Image
		err     error
	)
	switch strings.ToLower(img.FileType) {
	case "png":
		decoded, err = png.Decode(img)
	case "jpg", "jpeg":
		decoded, err = jpeg.Decode(img)
	case "tif", "tiff":
		decoded, err = tiff.Decode(img)
	default:
		decoded, _, err = image.Decode(img)
	}
	if err != nil {
		return nil, fmt.Errorf("could not decode %s image: %w", img.FileType, err)
	}

	return decoded, nil
}
