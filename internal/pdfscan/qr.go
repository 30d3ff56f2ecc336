package pdfscan

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Detector finds QR codes in an image.
type Detector interface {
	Detect(img image.Image) []string
}

// QRDetector decodes QR codes with gozxing. It looks for every code of the
// image first and falls back to a single pure code, which is how QR codes
// exported as standalone images usually look.
type QRDetector struct{}

var _ Detector = QRDetector{}

// Detect returns the texts of the QR codes found in img.
func (QRDetector) Detect(img image.Image) []string {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}

	var out []string
	if results, err := multiqr.NewQRCodeMultiReader().DecodeMultiple(bmp, hints); err == nil {
		for _, r := range results {
			out = append(out, r.GetText())
		}
	}
	if len(out) > 0 {
		return out
	}

	if r, err := qrcode.NewQRCodeReader().Decode(bmp, hints); err == nil {
		return []string{r.GetText()}
	}

	hints[gozxing.DecodeHintType_PURE_BARCODE] = true
	if r, err := qrcode.NewQRCodeReader().Decode(bmp, hints); err == nil {
		return []string{r.GetText()}
	}

	return nil
}
