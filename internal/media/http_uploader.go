package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
)

// HTTPUploader pushes files to a remote media host. Calls go through a
// circuit breaker so an unavailable host fails fast.
type HTTPUploader struct {
	endpoint string
	apiKey   string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[Asset]
}

func NewHTTPUploader(endpoint, apiKey string, client *http.Client) *HTTPUploader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPUploader{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   client,
		breaker: gobreaker.NewCircuitBreaker[Asset](gobreaker.Settings{
			Name:        "media-host",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, file File) (Asset, error) {
	return u.breaker.Execute(func() (Asset, error) {
		return u.upload(ctx, file)
	})
}

func (u *HTTPUploader) Delete(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}
	_, err := u.breaker.Execute(func() (Asset, error) {
		return Asset{}, u.delete(ctx, publicID)
	})
	return err
}

func (u *HTTPUploader) upload(ctx context.Context, file File) (Asset, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", file.Name)
		if err == nil {
			_, err = io.Copy(part, file.Body)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, pr)
	if err != nil {
		pr.Close()
		return Asset{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	u.authorize(req)

	resp, err := u.client.Do(req)
	if err != nil {
		return Asset{}, fmt.Errorf("upload %s: %w", file.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Asset{}, fmt.Errorf("upload %s: media host returned %d", file.Name, resp.StatusCode)
	}

	var asset Asset
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		return Asset{}, fmt.Errorf("decode upload response: %w", err)
	}
	if asset.URL == "" {
		return Asset{}, fmt.Errorf("upload %s: media host returned no url", file.Name)
	}
	return asset, nil
}

func (u *HTTPUploader) delete(ctx context.Context, publicID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.endpoint+"/"+url.PathEscape(publicID), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	u.authorize(req)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s: %w", publicID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("delete %s: media host returned %d", publicID, resp.StatusCode)
	}
	return nil
}

func (u *HTTPUploader) authorize(req *http.Request) {
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}
}
