package server

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

const qrCodeSize = 192

// explorerQRCode renders the explorer link as a base64 PNG so a phone can
// open the confirmed transaction straight from the dialog.
func explorerQRCode(url string) (string, error) {
	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(qrCodeSize)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code as PNG: %w", err)
	}

	return base64.StdEncoding.EncodeToString(png), nil
}
