package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sesmanagement/discussions/internal/config"
	"github.com/sesmanagement/discussions/internal/logger"
	"github.com/sesmanagement/discussions/internal/models"
)

var (
	log = logger.New("media")

	// ErrNotConfigured means no upload credentials were provided
	ErrNotConfigured = errors.New("media upload is not configured")
)

// UploadError wraps any failure between reading the file and getting a URL back
type UploadError struct {
	File string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.File, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Uploader pushes attachments to a Cloudinary account using signed uploads
type Uploader struct {
	creds      config.MediaConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewUploader creates an uploader; a nil http client means a 60s-timeout default
func NewUploader(creds config.MediaConfig, hc *http.Client) *Uploader {
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	if creds.BaseURL == "" {
		creds.BaseURL = "https://api.cloudinary.com"
	}
	return &Uploader{creds: creds, httpClient: hc, now: time.Now}
}

// Sign computes the upload signature: hex SHA-1 of the key-sorted "k=v&k=v" string followed by the secret
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

// Upload sends the file and returns its public https URL
func (u *Uploader) Upload(ctx context.Context, file *models.MediaFile) (string, error) {
	if file == nil || file.Body == nil {
		return "", &UploadError{Err: errors.New("no file")}
	}
	if !u.creds.Enabled() {
		return "", &UploadError{File: file.Name, Err: ErrNotConfigured}
	}

	// a retried draft hands the same reader in again
	if seeker, ok := file.Body.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return "", &UploadError{File: file.Name, Err: err}
		}
	}

	timestamp := strconv.FormatInt(u.now().Unix(), 10)
	signed := map[string]string{"timestamp": timestamp}
	if u.creds.UploadPreset != "" {
		signed["upload_preset"] = u.creds.UploadPreset
	}
	signature := Sign(signed, u.creds.APISecret)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", file.Name)
	if err != nil {
		return "", &UploadError{File: file.Name, Err: err}
	}
	if _, err := io.Copy(part, file.Body); err != nil {
		return "", &UploadError{File: file.Name, Err: fmt.Errorf("read file: %w", err)}
	}
	for k, v := range signed {
		_ = form.WriteField(k, v)
	}
	_ = form.WriteField("api_key", u.creds.APIKey)
	_ = form.WriteField("signature", signature)
	if err := form.Close(); err != nil {
		return "", &UploadError{File: file.Name, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint(file), &buf)
	if err != nil {
		return "", &UploadError{File: file.Name, Err: err}
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	log.Debug("Uploading %s (%s)", file.Name, file.ContentType)
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", &UploadError{File: file.Name, Err: err}
	}
	defer resp.Body.Close()

	var body struct {
		SecureURL string `json:"secure_url"`
		Error     struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := body.Error.Message
		if msg == "" {
			msg = resp.Status
		}
		return "", &UploadError{File: file.Name, Err: fmt.Errorf("media host: %s", msg)}
	}
	if body.SecureURL == "" {
		return "", &UploadError{File: file.Name, Err: errors.New("media host returned no url")}
	}

	log.Info("Uploaded %s", file.Name)
	return body.SecureURL, nil
}

func (u *Uploader) endpoint(file *models.MediaFile) string {
	resource := "auto"
	if file.Kind() == models.MessageImage {
		resource = "image"
	}
	return fmt.Sprintf("%s/v1_1/%s/%s/upload", strings.TrimRight(u.creds.BaseURL, "/"), u.creds.CloudName, resource)
}
