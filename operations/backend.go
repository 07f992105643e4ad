package operations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/CorrelAid/registration_uploader/models"
)

// BackendError is a non-2xx answer from the registration endpoint.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("registration rejected (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("registration rejected (%d)", e.Status)
}

// Backend posts registrations to the user service.
type Backend struct {
	BaseURL      string
	RegisterPath string
	Client       *http.Client
}

func NewBackend(baseURL, registerPath string, timeout time.Duration) *Backend {
	return &Backend{
		BaseURL:      baseURL,
		RegisterPath: registerPath,
		Client:       &http.Client{Timeout: timeout},
	}
}

type errorBody struct {
	Message string `json:"message"`
}

func (b *Backend) Register(ctx context.Context, payload models.RegisterPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := strings.TrimRight(b.BaseURL, "/") + b.RegisterPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	berr := &BackendError{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil {
		var body errorBody
		if json.Unmarshal(raw, &body) == nil {
			berr.Message = body.Message
		}
	}
	return berr
}
