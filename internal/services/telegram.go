// Telegram Bot API implementation of [SourceClient]
//
// Response shapes based on https://core.telegram.org/bots/api#sticker
package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/stickerbridge/internal/models"
	"github.com/desertthunder/stickerbridge/internal/shared"
	"github.com/zeebo/blake3"
)

const defaultTelegramBaseURL string = "https://api.telegram.org"

const (
	mimeWebP       = "image/webp"
	mimeTGS        = "application/x-tgsticker"
	mimeWebM       = "video/webm"
	tgStickerField = "png_sticker"
)

// TelegramFile represents a file reference in Bot API responses.
type TelegramFile struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FilePath     string `json:"file_path"`
	FileSize     int    `json:"file_size"`
}

// TelegramSticker represents a single sticker within a set.
type TelegramSticker struct {
	FileID       string        `json:"file_id"`
	FileUniqueID string        `json:"file_unique_id"`
	Emoji        string        `json:"emoji"`
	IsAnimated   bool          `json:"is_animated"`
	IsVideo      bool          `json:"is_video"`
	Thumbnail    *TelegramFile `json:"thumbnail"`
}

// TelegramStickerSet represents a sticker set listing.
type TelegramStickerSet struct {
	Name       string            `json:"name"`
	Title      string            `json:"title"`
	IsAnimated bool              `json:"is_animated"`
	IsVideo    bool              `json:"is_video"`
	Stickers   []TelegramSticker `json:"stickers"`
	Thumbnail  *TelegramFile     `json:"thumbnail"`
}

// TelegramClient implements the SourceClient interface against the Bot API.
// The bot token is embedded in the request path per the Bot API convention.
type TelegramClient struct {
	baseURL    string
	token      string
	ownerID    int64
	httpClient *http.Client
}

// NewTelegramClient creates a new Bot API client. Packs created in the
// reverse direction are owned by the user identified by ownerID.
func NewTelegramClient(baseURL, token string, ownerID int64, client *http.Client) *TelegramClient {
	if baseURL == "" {
		baseURL = defaultTelegramBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &TelegramClient{
		baseURL:    baseURL,
		token:      token,
		ownerID:    ownerID,
		httpClient: client,
	}
}

// Name returns the platform name.
func (t *TelegramClient) Name() string {
	return "Telegram"
}

// apiEnvelope is the wrapper every Bot API response comes in.
type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// call performs a Bot API method call with query parameters and decodes the
// result into out.
func (t *TelegramClient) call(ctx context.Context, method string, params url.Values, out any) error {
	apiURL := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return t.decodeEnvelope(resp, method, out)
}

func (t *TelegramClient) decodeEnvelope(resp *http.Response, method string, out any) error {
	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !envelope.OK {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w", method, shared.ErrProviderThrottled)
		case strings.Contains(envelope.Description, "STICKERSET_INVALID"):
			return fmt.Errorf("%s: %w", method, shared.ErrPackNotFound)
		case strings.Contains(envelope.Description, "already occupied"):
			return fmt.Errorf("%s: %w", method, shared.ErrNameCollision)
		default:
			return fmt.Errorf("%s: %w: status %d: %s", method, shared.ErrProvider, resp.StatusCode, envelope.Description)
		}
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to decode result: %w", err)
		}
	}

	return nil
}

// stickerFormat maps the per-sticker Bot API flags to a MIME type.
func stickerFormat(s TelegramSticker) string {
	switch {
	case s.IsVideo:
		return mimeWebM
	case s.IsAnimated:
		return mimeTGS
	default:
		return mimeWebP
	}
}

// FetchMetadata retrieves a sticker set listing via getStickerSet.
//
// The fingerprint digests the set name and each sticker's file_unique_id,
// which the platform keeps stable across bots and over time.
func (t *TelegramClient) FetchMetadata(ctx context.Context, shortName string) (*PackMetadata, error) {
	params := url.Values{}
	params.Set("name", shortName)

	var set TelegramStickerSet
	if err := t.call(ctx, "getStickerSet", params, &set); err != nil {
		return nil, err
	}

	hasher := blake3.New()
	hasher.Write([]byte(set.Name))
	hasher.Write([]byte{0})

	meta := &PackMetadata{
		ShortName: set.Name,
		Title:     set.Title,
		Animated:  set.IsAnimated,
		Video:     set.IsVideo,
		Items:     make([]ItemRef, len(set.Stickers)),
	}

	for i, sticker := range set.Stickers {
		hasher.Write([]byte(sticker.FileUniqueID))
		hasher.Write([]byte{0})

		meta.Items[i] = ItemRef{
			ID:       sticker.FileID,
			Position: i,
			Emoji:    sticker.Emoji,
			Format:   stickerFormat(sticker),
		}
	}

	if set.Thumbnail != nil {
		meta.Cover = &ItemRef{
			ID:     set.Thumbnail.FileID,
			Emoji:  "",
			Format: mimeWebP,
		}
	}

	meta.Fingerprint = hex.EncodeToString(hasher.Sum(nil))

	return meta, nil
}

// FetchItem downloads a single item payload. Resolves the file path via
// getFile, then fetches the bytes from the file endpoint.
func (t *TelegramClient) FetchItem(ctx context.Context, ref ItemRef) ([]byte, error) {
	params := url.Values{}
	params.Set("file_id", ref.ID)

	var file TelegramFile
	if err := t.call(ctx, "getFile", params, &file); err != nil {
		return nil, err
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", t.baseURL, t.token, file.FilePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download: %w: status %d", shared.ErrProvider, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file body: %w", err)
	}

	return data, nil
}

// PackExists reports whether a sticker set with the given short name exists.
func (t *TelegramClient) PackExists(ctx context.Context, shortName string) (bool, error) {
	_, err := t.FetchMetadata(ctx, shortName)
	if err != nil {
		if errors.Is(err, shared.ErrPackNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreatePack creates a new sticker set and adds every sticker to it.
//
// The first sticker goes through createNewStickerSet, the rest through
// addStickerToSet. Both calls upload the payload as multipart form data.
func (t *TelegramClient) CreatePack(ctx context.Context, shortName, title string, stickers []models.Sticker) error {
	if len(stickers) == 0 {
		return fmt.Errorf("cannot create an empty sticker set: %w", shared.ErrUnsupportedPack)
	}

	for i, sticker := range stickers {
		fields := map[string]string{
			"user_id": strconv.FormatInt(t.ownerID, 10),
			"name":    shortName,
			"emojis":  sticker.Emoji,
		}

		method := "addStickerToSet"
		if i == 0 {
			method = "createNewStickerSet"
			fields["title"] = title
		}

		if err := t.callMultipart(ctx, method, fields, sticker.Image); err != nil {
			return err
		}
	}

	return nil
}

// callMultipart performs a Bot API method call uploading a sticker payload.
func (t *TelegramClient) callMultipart(ctx context.Context, method string, fields map[string]string, payload []byte) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("failed to encode form field %s: %w", key, err)
		}
	}

	part, err := writer.CreateFormFile(tgStickerField, "sticker.webp")
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return fmt.Errorf("failed to write sticker payload: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize form: %w", err)
	}

	apiURL := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return t.decodeEnvelope(resp, method, nil)
}
