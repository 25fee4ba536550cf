package notify

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	qrdecode "github.com/makiuchi-d/gozxing/qrcode"
	qrencode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// EncodeQR renders the validation URL as a PNG QR code.
func EncodeQR(url string) ([]byte, error) {
	return qrencode.Encode(url, qrencode.Medium, qrSize)
}

// DecodeQR extracts the embedded text from an uploaded QR code image.
func DecodeQR(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("reading QR image: %w", err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("preparing QR image: %w", err)
	}

	result, err := qrdecode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", fmt.Errorf("decoding QR image: %w", err)
	}
	return result.GetText(), nil
}
