package recognition

import (
	"bytes"
	"context"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// variant is one image-preprocessing attempt. Off-angle or low-light
// photos often fail a plain decode but succeed after normalization, so
// the variants run in order and the first decodable one wins.
type variant struct {
	name  string
	apply func(image.Image) image.Image
}

var qrVariants = []variant{
	{"original", func(img image.Image) image.Image { return img }},
	{"grayscale", func(img image.Image) image.Image { return imaging.Grayscale(img) }},
	{"contrast", func(img image.Image) image.Image {
		return imaging.AdjustContrast(imaging.Grayscale(img), 30)
	}},
	{"sharpen", func(img image.Image) image.Image { return imaging.Sharpen(img, 1.5) }},
	{"resize800", func(img image.Image) image.Image {
		return imaging.Resize(img, 800, 0, imaging.Lanczos)
	}},
	{"resize1600", func(img image.Image) image.Image {
		return imaging.Resize(img, 1600, 0, imaging.Lanczos)
	}},
}

// QR decodes receipt QR codes, trying preprocessing variants before an
// optional remote decoding service.
type QR struct {
	logger *slog.Logger
	remote string // optional external decode endpoint; empty disables it
	http   *http.Client

	// decode is injectable for tests; defaults to gozxing.
	decode func(image.Image) (string, error)
}

func NewQR(remoteEndpoint string, logger *slog.Logger) *QR {
	if logger == nil {
		logger = slog.Default()
	}
	return &QR{
		logger: logger,
		remote: remoteEndpoint,
		http:   &http.Client{Timeout: 30 * time.Second},
		decode: decodeWithZXing,
	}
}

// DecodeQR implements QRDecoder. Empty result with nil error means no
// variant (and no remote fallback) found a code.
func (q *QR) DecodeQR(ctx context.Context, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		q.logger.Warn("qr.decode.bad_image", "error", err)
		return "", err
	}
	for _, v := range qrVariants {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		payload, err := q.decode(v.apply(img))
		if err == nil && payload != "" {
			q.logger.Info("qr.decode.ok", "variant", v.name, "payload_len", len(payload))
			return payload, nil
		}
	}
	if q.remote != "" {
		payload, err := q.remoteDecode(ctx, data)
		if err != nil {
			q.logger.Warn("qr.decode.remote_failed", "error", err)
			return "", nil
		}
		if payload != "" {
			q.logger.Info("qr.decode.remote_ok", "payload_len", len(payload))
			return payload, nil
		}
	}
	q.logger.Info("qr.decode.miss", "variants", len(qrVariants))
	return "", nil
}

func (q *QR) remoteDecode(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.remote, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := q.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func decodeWithZXing(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", err
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	res, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", err
	}
	return res.GetText(), nil
}
