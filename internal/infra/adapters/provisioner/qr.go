package provisioner

import (
	"fmt"
	"io"
	"os"

	"github.com/yeqown/go-qrcode"

	"telegram-vpn-provisioning/internal/domain"
)

// QREncoder renders WireGuard configurations as PNG QR codes.
type QREncoder struct {
	options []qrcode.ImageOption
}

func NewQREncoder() *QREncoder {
	return &QREncoder{options: []qrcode.ImageOption{
		qrcode.WithQRWidth(7),
		qrcode.WithBuiltinImageEncoder(qrcode.PNG_FORMAT),
	}}
}

// Encode writes the PNG for content to w.
func (e *QREncoder) Encode(content string, w io.Writer) error {
	qrc, err := qrcode.New(content, e.options...)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQrGenerationFailed, err)
	}
	if err := qrc.SaveTo(w); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQrGenerationFailed, err)
	}
	return nil
}

// EncodeFile reads confPath and writes its QR code to pngPath.
func (e *QREncoder) EncodeFile(confPath, pngPath string) error {
	content, err := os.ReadFile(confPath)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQrGenerationFailed, err)
	}
	f, err := os.Create(pngPath)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQrGenerationFailed, err)
	}
	if err := e.Encode(string(content), f); err != nil {
		f.Close()
		_ = os.Remove(pngPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(pngPath)
		return fmt.Errorf("%w: %v", domain.ErrQrGenerationFailed, err)
	}
	return nil
}
