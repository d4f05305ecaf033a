package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	qrcodeTerminal "github.com/Baozisoftware/qrcode-terminal-go"
	"github.com/skip2/go-qrcode"
)

// qrPNGSize is the side of the written PNG in pixels.
const qrPNGSize = 320

// qrPayload is the text the phone scans: the challenge reference, the
// device identity key and the client id, comma separated.
func qrPayload(ref string, identityKey []byte, clientID string) string {
	return strings.Join([]string{ref, base64.StdEncoding.EncodeToString(identityKey), clientID}, ",")
}

// printQR draws payload on the terminal.
func printQR(payload string) {
	obj := qrcodeTerminal.New()
	obj.Get(payload).Print()
}

// writeQRPNG renders payload as a PNG at path.
func writeQRPNG(path, payload string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := qrcode.WriteFile(payload, qrcode.Medium, qrPNGSize, path); err != nil {
		return fmt.Errorf("write qr png: %w", err)
	}
	return nil
}
