package recognition

import (
	"context"

	"github.com/alex-mextner/expensesyncbot/internal/entity"
)

// Input is a job payload prepared for the chain. Image is only set for
// file payloads, resolved from the opaque handle by a MediaFetcher.
type Input struct {
	Kind    entity.PayloadKind
	Payload string
	Image   []byte
}

// MediaFetcher resolves an opaque file handle into image bytes.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, handle string) ([]byte, error)
}

// QRDecoder decodes a QR/barcode payload from a photo. An empty string
// with a nil error means no code was found.
type QRDecoder interface {
	DecodeQR(ctx context.Context, image []byte) (string, error)
}

// PageFetcher resolves a URL into readable text, including client-rendered
// content.
type PageFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// TextRecognizer transcribes a receipt photo. Used as the last fallback.
type TextRecognizer interface {
	RecognizeText(ctx context.Context, image []byte, format string) (string, error)
}

// Step is one stage of the ordered fallback: it either yields resolved
// text, yields nothing ("" with nil error), or fails. A failure falls
// through to the next step exactly like an empty yield.
type Step struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}
