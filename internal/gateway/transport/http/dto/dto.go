package dto

type ShortenRequest struct {
	LongURL string `json:"longUrl"`
}

type URLResponse struct {
	LongURL string `json:"longUrl"`
}

type QRCodeResponse struct {
	QRCode string `json:"qrCode"`
}
