// Package qr renders pairing challenges for terminals and browsers.
package qr

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"
)

const imageSize = 256

// DataURL encodes code as a PNG QR image inside a data URL.
func DataURL(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, imageSize)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// PrintTerminal draws code using half-block characters.
func PrintTerminal(w io.Writer, code string) {
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}
