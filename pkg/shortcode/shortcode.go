// Package shortcode generates the fixed-length random codes that identify
// short URLs.
package shortcode

import "math/rand/v2"

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Length is the fixed length of every generated code.
const Length = 10

// Generate returns a code of Length symbols drawn uniformly from the
// alphanumeric alphabet. Collisions are resolved by the storage layer
// (upsert, last writer wins), so no uniqueness check happens here.
func Generate() string {
	b := make([]byte, Length)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}
