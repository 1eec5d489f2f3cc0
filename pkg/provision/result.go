package provision

import (
	"encoding/base64"
)

// Result of a created peer. The private key only appears inside Config.
type Result struct {
	Iface     string
	Name      string
	Address   string
	PublicKey string
	Config    string
	QRCode    []byte
}

func (r *Result) QRCodeBase64() string {
	return base64.StdEncoding.EncodeToString(r.QRCode)
}

func (r *Result) QRCodeDataURL() string {
	return "data:image/png;base64," + r.QRCodeBase64()
}
