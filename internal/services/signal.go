// Signal sticker pack service implementation of [DestinationClient]
package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/desertthunder/stickerbridge/internal/models"
	"github.com/desertthunder/stickerbridge/internal/shared"
)

const packKeyLength = 32

// SignalManifestSticker represents a single sticker entry in a pack manifest.
type SignalManifestSticker struct {
	ID    int    `json:"id"`
	Emoji string `json:"emoji"`
}

// SignalManifest represents a pack manifest exchanged with the service.
type SignalManifest struct {
	Title    string                  `json:"title"`
	Author   string                  `json:"author"`
	Cover    *SignalManifestSticker  `json:"cover,omitempty"`
	Stickers []SignalManifestSticker `json:"stickers"`
}

// SignalClient implements the DestinationClient interface for the sticker
// pack service. Account credentials are supplied per call because uploads
// rotate across accounts.
type SignalClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSignalClient creates a new sticker pack service client.
func NewSignalClient(baseURL string, client *http.Client) *SignalClient {
	if client == nil {
		client = http.DefaultClient
	}

	return &SignalClient{
		baseURL:    baseURL,
		httpClient: client,
	}
}

// Name returns the platform name.
func (s *SignalClient) Name() string {
	return "Signal"
}

// UploadPack uploads a complete pack and returns its id and key.
//
// The pack key is generated client side. The service stores payloads keyed
// by it and never learns the key itself, so losing the returned key makes
// the pack unrecoverable.
func (s *SignalClient) UploadPack(ctx context.Context, pack *models.StickerPack, creds Credentials) ([]byte, []byte, error) {
	packKey := make([]byte, packKeyLength)
	if _, err := rand.Read(packKey); err != nil {
		return nil, nil, fmt.Errorf("failed to generate pack key: %w", err)
	}

	manifest := SignalManifest{
		Title:    pack.Title,
		Author:   pack.Author,
		Stickers: make([]SignalManifestSticker, len(pack.Stickers)),
	}
	for i, sticker := range pack.Stickers {
		manifest.Stickers[i] = SignalManifestSticker{ID: sticker.Position, Emoji: sticker.Emoji}
	}
	if pack.Cover != nil {
		manifest.Cover = &SignalManifestSticker{ID: pack.Cover.Position, Emoji: pack.Cover.Emoji}
	}

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("manifest", string(manifestJSON)); err != nil {
		return nil, nil, fmt.Errorf("failed to encode manifest field: %w", err)
	}
	if err := writer.WriteField("pack_key", hex.EncodeToString(packKey)); err != nil {
		return nil, nil, fmt.Errorf("failed to encode pack key field: %w", err)
	}

	for _, sticker := range pack.Stickers {
		part, err := writer.CreateFormFile(fmt.Sprintf("sticker_%d", sticker.Position), "sticker.webp")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create sticker part: %w", err)
		}
		if _, err := part.Write(sticker.Image); err != nil {
			return nil, nil, fmt.Errorf("failed to write sticker payload: %w", err)
		}
	}

	if pack.Cover != nil {
		part, err := writer.CreateFormFile("cover", "cover.webp")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create cover part: %w", err)
		}
		if _, err := part.Write(pack.Cover.Image); err != nil {
			return nil, nil, fmt.Errorf("failed to write cover payload: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	uploadURL := s.baseURL + "/v1/sticker-packs"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.SetBasicAuth(creds.Username, creds.Password)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := s.checkStatus(resp, "upload pack"); err != nil {
		return nil, nil, err
	}

	var result struct {
		PackID string `json:"pack_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}

	packID, err := hex.DecodeString(result.PackID)
	if err != nil {
		return nil, nil, fmt.Errorf("service returned a malformed pack id: %w", err)
	}

	return packID, packKey, nil
}

// FetchPack retrieves a previously uploaded pack with all item payloads.
func (s *SignalClient) FetchPack(ctx context.Context, packID, packKey []byte) (*models.StickerPack, error) {
	packHex := hex.EncodeToString(packID)
	keyHex := hex.EncodeToString(packKey)

	manifestURL := fmt.Sprintf("%s/v1/sticker-packs/%s/manifest?key=%s", s.baseURL, packHex, keyHex)

	var manifest SignalManifest
	if err := s.getJSON(ctx, manifestURL, "fetch manifest", &manifest); err != nil {
		return nil, err
	}

	pack := &models.StickerPack{
		Title:    manifest.Title,
		Author:   manifest.Author,
		Stickers: make([]models.Sticker, len(manifest.Stickers)),
	}

	for i, entry := range manifest.Stickers {
		data, err := s.fetchStickerData(ctx, packHex, keyHex, entry.ID)
		if err != nil {
			return nil, err
		}

		pack.Stickers[i] = models.Sticker{
			Position: entry.ID,
			Emoji:    entry.Emoji,
			Image:    data,
			Kind:     models.KindRaster,
		}
	}

	return pack, nil
}

func (s *SignalClient) fetchStickerData(ctx context.Context, packHex, keyHex string, stickerID int) ([]byte, error) {
	stickerURL := fmt.Sprintf("%s/v1/sticker-packs/%s/stickers/%d?key=%s", s.baseURL, packHex, stickerID, keyHex)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stickerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := s.checkStatus(resp, "fetch sticker"); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read sticker body: %w", err)
	}

	return data, nil
}

func (s *SignalClient) getJSON(ctx context.Context, fullURL, operation string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := s.checkStatus(resp, operation); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func (s *SignalClient) checkStatus(resp *http.Response, operation string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", operation, shared.ErrProviderThrottled)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", operation, shared.ErrPackNotFound)
	default:
		return fmt.Errorf("%s: %w: status %d", operation, shared.ErrProvider, resp.StatusCode)
	}
}
