// Package media downloads, decrypts, and transcribes WhatsApp media
// attachments.
package media

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/mohomer/layla-concierge/pkg/logging"
)

// Type identifies the media kind; it selects the HKDF info string the key
// derivation is bound to.
type Type string

const (
	TypeAudio Type = "audio"
	TypeImage Type = "image"
	TypeVideo Type = "video"
)

const (
	macTrailerLen  = 10
	expandedKeyLen = 112
)

func (t Type) infoString() (string, error) {
	switch t {
	case TypeAudio:
		return "WhatsApp Audio Keys", nil
	case TypeImage:
		return "WhatsApp Image Keys", nil
	case TypeVideo:
		return "WhatsApp Video Keys", nil
	default:
		return "", fmt.Errorf("media: unsupported media type %q", t)
	}
}

// mediaKeys is the HKDF expansion of the 32-byte media key: 16-byte IV,
// 32-byte AES key, 32-byte MAC key, 32 bytes unused.
type mediaKeys struct {
	iv        []byte
	cipherKey []byte
	macKey    []byte
}

func deriveKeys(mediaKeyB64 string, t Type) (mediaKeys, error) {
	info, err := t.infoString()
	if err != nil {
		return mediaKeys{}, err
	}
	key, err := base64.StdEncoding.DecodeString(mediaKeyB64)
	if err != nil {
		return mediaKeys{}, fmt.Errorf("media: decode media key: %w", err)
	}
	if len(key) != 32 {
		return mediaKeys{}, fmt.Errorf("media: media key is %d bytes, want 32", len(key))
	}

	expanded := make([]byte, expandedKeyLen)
	r := hkdf.New(sha256.New, key, nil, []byte(info))
	if _, err := io.ReadFull(r, expanded); err != nil {
		return mediaKeys{}, fmt.Errorf("media: expand media key: %w", err)
	}
	return mediaKeys{
		iv:        expanded[0:16],
		cipherKey: expanded[16:48],
		macKey:    expanded[48:80],
	}, nil
}

// Decrypt authenticates and decrypts an encrypted media payload. The payload
// is AES-256-CBC ciphertext followed by a 10-byte HMAC-SHA256 trailer over
// IV plus ciphertext.
func Decrypt(payload []byte, mediaKeyB64 string, t Type) ([]byte, error) {
	keys, err := deriveKeys(mediaKeyB64, t)
	if err != nil {
		return nil, err
	}
	if len(payload) <= macTrailerLen {
		return nil, fmt.Errorf("media: payload too short (%d bytes)", len(payload))
	}

	ciphertext := payload[:len(payload)-macTrailerLen]
	trailer := payload[len(payload)-macTrailerLen:]

	mac := hmac.New(sha256.New, keys.macKey)
	mac.Write(keys.iv)
	mac.Write(ciphertext)
	if !hmac.Equal(trailer, mac.Sum(nil)[:macTrailerLen]) {
		return nil, fmt.Errorf("media: MAC mismatch, payload corrupted or wrong key")
	}

	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("media: ciphertext length %d not a block multiple", len(ciphertext))
	}
	block, err := aes.NewCipher(keys.cipherKey)
	if err != nil {
		return nil, fmt.Errorf("media: init cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, keys.iv).CryptBlocks(plaintext, ciphertext)

	return stripPadding(plaintext)
}

func stripPadding(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("media: empty plaintext")
	}
	pad := int(plaintext[len(plaintext)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(plaintext) {
		return nil, fmt.Errorf("media: invalid padding length %d", pad)
	}
	for _, b := range plaintext[len(plaintext)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("media: malformed padding")
		}
	}
	return plaintext[:len(plaintext)-pad], nil
}

// Fetcher downloads encrypted media blobs from the gateway's CDN URLs.
type Fetcher struct {
	client *http.Client
	logger *logging.Logger
}

// NewFetcher builds a Fetcher; a nil client gets a 30s-timeout default.
func NewFetcher(client *http.Client, logger *logging.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Fetcher{client: client, logger: logger}
}

// Fetch downloads the encrypted payload at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("media: build download request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media: download returned status %d", resp.StatusCode)
	}
	// WhatsApp media tops out well under 100MB.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 100<<20))
	if err != nil {
		return nil, fmt.Errorf("media: read download: %w", err)
	}
	f.logger.Info("media downloaded", "bytes", len(body))
	return body, nil
}

// FetchAndDecrypt downloads the blob at url and decrypts it with the
// base64 media key.
func (f *Fetcher) FetchAndDecrypt(ctx context.Context, url, mediaKeyB64 string, t Type) ([]byte, error) {
	payload, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return Decrypt(payload, mediaKeyB64, t)
}
