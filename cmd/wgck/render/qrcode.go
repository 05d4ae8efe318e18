package render

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"
)

const (
	qrBoxSize = 10
	qrBorder  = 4
)

// WriteQR stores confPath's content as a png QR code next to it.
func WriteQR(confPath string) (string, error) {
	data, err := os.ReadFile(confPath)
	if err != nil {
		return "", err
	}

	qrc, err := qrcode.NewWith(string(data), qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionLow))
	if err != nil {
		return "", fmt.Errorf("qrcode encode %s: %w", confPath, err)
	}

	pngPath := QRPath(confPath)
	w, err := standard.New(pngPath,
		standard.WithBuiltinImageEncoder(standard.PNG_FORMAT),
		standard.WithQRWidth(qrBoxSize),
		standard.WithBorderWidth(qrBorder*qrBoxSize),
	)
	if err != nil {
		return "", err
	}
	// Save closes the writer
	if err := qrc.Save(w); err != nil {
		return "", fmt.Errorf("qrcode save %s: %w", pngPath, err)
	}
	return pngPath, nil
}

// QRCodes regenerates the png of every client config present in outDir.
func QRCodes(src Source, outDir string) ([]string, error) {
	var written []string
	for _, peer := range src.Registry().Peers() {
		if peer.Name == "" {
			continue
		}
		confPath := ClientConfPath(outDir, peer.Name)
		if _, err := os.Stat(confPath); err != nil {
			continue
		}
		logrus.WithField("file", confPath).Info("generating qr code")
		pngPath, err := WriteQR(confPath)
		if err != nil {
			return written, err
		}
		written = append(written, pngPath)
	}
	return written, nil
}
