package operations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/CorrelAid/registration_uploader/models"
)

var ErrEmptyImageURL = errors.New("image host returned no url")

// ImageHost uploads pictures to a Cloudinary-style unsigned upload endpoint.
type ImageHost struct {
	BaseURL      string
	UploadPreset string
	CloudName    string
	Client       *http.Client
}

func NewImageHost(baseURL, preset, cloudName string, timeout time.Duration) *ImageHost {
	return &ImageHost{
		BaseURL:      baseURL,
		UploadPreset: preset,
		CloudName:    cloudName,
		Client:       &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload sends the file and returns the hosted URL.
func (h *ImageHost) Upload(ctx context.Context, file models.ImageFile) (string, error) {
	body, contentType, err := h.encode(file)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := h.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("failed to upload image: %s", resp.Status)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.URL == "" {
		return "", ErrEmptyImageURL
	}
	return out.URL, nil
}

func (h *ImageHost) encode(file models.ImageFile) (io.Reader, string, error) {
	src, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	defer src.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	header.Set("Content-Type", file.ContentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}

	if err := w.WriteField("upload_preset", h.UploadPreset); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("cloud_name", h.CloudName); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
