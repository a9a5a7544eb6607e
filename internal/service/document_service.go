package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"graphrag-gateway/internal/auth"
	"graphrag-gateway/internal/pkg/logger"
	"graphrag-gateway/internal/pkg/serverutils"
	"graphrag-gateway/pkg/events"
)

type UploadFile struct {
	FileName    string
	ContentType string
	Content     io.Reader
}

type IDocumentService interface {
	List(ctx context.Context) (json.RawMessage, error)
	Upload(ctx context.Context, identity auth.Identity, file UploadFile) (json.RawMessage, error)
}

type documentService struct {
	baseURL   string
	client    *http.Client
	publisher IPublisherService
	logger    logger.ILogger
}

func NewDocumentService(baseURL string, timeout time.Duration, transport http.RoundTripper, publisher IPublisherService, log logger.ILogger) IDocumentService {
	return &documentService{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout, Transport: transport},
		publisher: publisher,
		logger:    log,
	}
}

// List proxies the document listing from the ETL service as is.
func (s *documentService) List(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/v1/documents", nil)
	if err != nil {
		return nil, serverutils.Internal(err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("DocumentService", "ETL documents list request failed", map[string]interface{}{"error": err})
		return nil, serverutils.UpstreamUnavailable("Document service unavailable", err)
	}
	defer resp.Body.Close()

	body, err := readJSON(resp.Body)
	if err != nil {
		s.logger.Error("DocumentService", "Failed to parse ETL documents response", map[string]interface{}{"error": err})
		return nil, serverutils.UpstreamUnavailable("Invalid response from document service", err)
	}
	return body, nil
}

func (s *documentService) Upload(ctx context.Context, identity auth.Identity, file UploadFile) (json.RawMessage, error) {
	var form bytes.Buffer
	writer := multipart.NewWriter(&form)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.FileName))
	if file.ContentType != "" {
		header.Set("Content-Type", file.ContentType)
	} else {
		header.Set("Content-Type", "application/octet-stream")
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, serverutils.Internal(err)
	}
	size, err := io.Copy(part, file.Content)
	if err != nil {
		return nil, serverutils.Internal(fmt.Errorf("read uploaded file: %w", err))
	}
	if err := writer.Close(); err != nil {
		return nil, serverutils.Internal(err)
	}

	s.logger.Info("DocumentService", "Uploading document to ETL service", map[string]interface{}{
		"user": identity.Username,
		"file": file.FileName,
		"size": size,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/documents/upload", &form)
	if err != nil {
		return nil, serverutils.Internal(err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("DocumentService", "ETL upload request failed", map[string]interface{}{"error": err})
		return nil, serverutils.UpstreamUnavailable("Document processing service unavailable", err)
	}
	defer resp.Body.Close()

	body, err := readJSON(resp.Body)
	if err != nil {
		s.logger.Error("DocumentService", "Failed to parse ETL upload response", map[string]interface{}{"error": err})
		return nil, serverutils.UpstreamUnavailable("Invalid response from document service", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Error("DocumentService", "ETL service returned error for upload", map[string]interface{}{
			"status":   resp.StatusCode,
			"response": string(body),
		})
		return nil, serverutils.UpstreamUnavailable("Document processing failed", fmt.Errorf("etl status %d", resp.StatusCode))
	}

	s.publisher.Publish(ctx, events.New(events.TypeDocumentUpload, map[string]interface{}{
		"user_id":   identity.UserID.String(),
		"file_name": file.FileName,
		"size":      size,
	}))
	return body, nil
}

func readJSON(r io.Reader) (json.RawMessage, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
