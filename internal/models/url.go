package models

import "time"

// ShortURL is a single short-code mapping as stored in the urls table.
// QRCode is empty until the worker has rendered an image for it.
type ShortURL struct {
	ID        int64     `json:"id"`
	ShortCode string    `json:"short_code"`
	LongURL   string    `json:"long_url"`
	CreatedAt time.Time `json:"created_at"`
	QRCode    string    `json:"qr_code"`
}

// URLCreatedMessage is the queue payload published once per created short URL.
type URLCreatedMessage struct {
	ShortCode string `json:"shortCode"`
	LongURL   string `json:"longUrl"`
}
