package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"time"

	apperrors "github.com/anime-shed/olive-inspector-go/internal/errors"
	"github.com/anime-shed/olive-inspector-go/internal/imagesource"
	"github.com/anime-shed/olive-inspector-go/internal/logger"
	"github.com/anime-shed/olive-inspector-go/pkg/models"
	"github.com/anime-shed/olive-inspector-go/pkg/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds one analyze call end to end
	DefaultTimeout = 30 * time.Second

	detectPath        = "/detect"
	imageField        = "image"
	imageFileName     = "image.jpg"
	imageContentType  = "image/jpeg"
	maxResponseBytes  = 64 * 1024 * 1024
	maxErrorBodyBytes = 4096
)

// Gateway issues image-analysis requests to the external detection service
type Gateway interface {
	Analyze(ctx context.Context, imageRef, serverEndpoint string) (*models.AnalysisOutcome, error)
}

// detectResponse is the JSON body returned by POST /detect
type detectResponse struct {
	Image         string                `json:"image"`
	DetectionInfo *models.DetectionInfo `json:"detection_info"`
}

// DetectionGateway implements Gateway over HTTP
type DetectionGateway struct {
	client    *http.Client
	loader    imagesource.Loader
	validator *validation.AddressValidator
	timeout   time.Duration
	log       *logrus.Entry
}

// NewDetectionGateway creates a gateway; timeout <= 0 selects DefaultTimeout
func NewDetectionGateway(loader imagesource.Loader, timeout time.Duration) *DetectionGateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &DetectionGateway{
		// no Client.Timeout: the per-call context carries the deadline
		client:    &http.Client{Transport: transport},
		loader:    loader,
		validator: validation.NewAddressValidator(),
		timeout:   timeout,
		log:       logger.ForComponent("gateway"),
	}
}

// Timeout returns the per-call deadline
func (g *DetectionGateway) Timeout() time.Duration {
	return g.timeout
}

// Analyze uploads the referenced image and classifies the response.
// Failures come back as *apperrors.AppError of type not_configured, timeout,
// connection, server or validation; an empty detection is an outcome.
func (g *DetectionGateway) Analyze(ctx context.Context, imageRef, serverEndpoint string) (*models.AnalysisOutcome, error) {
	if err := g.validator.Validate(serverEndpoint); err != nil {
		return nil, apperrors.NewNotConfiguredError("detection server address is not configured", err)
	}

	// The deadline covers loading the image as well as the upload.
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	data, err := g.loader.Load(callCtx, imageRef)
	if callCtx.Err() != nil {
		if err == nil {
			err = callCtx.Err()
		}
		classified := classifyTransportError(ctx, callCtx, err)
		g.log.WithError(err).WithField("image_ref", imageRef).Warn("Image load did not finish in time")
		return nil, classified
	}
	if err != nil {
		return nil, apperrors.NewValidationError("failed to load image", err)
	}

	req := models.AnalysisRequest{
		ImageRef:  imageRef,
		ImageData: data,
		Endpoint:  serverEndpoint,
		RequestID: uuid.NewString(),
	}
	return g.send(ctx, callCtx, req)
}

func (g *DetectionGateway) send(parent, ctx context.Context, req models.AnalysisRequest) (*models.AnalysisOutcome, error) {
	log := g.log.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"endpoint":   req.Endpoint,
		"image_ref":  req.ImageRef,
	})

	body, contentType, err := encodeMultipart(req.ImageData)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode request", err)
	}

	url := "http://" + req.Endpoint + detectPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, apperrors.NewNotConfiguredError("invalid detection server URL", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", req.RequestID)

	start := time.Now()
	log.WithField("image_bytes", len(req.ImageData)).Debug("Sending analysis request")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		classified := classifyTransportError(parent, ctx, err)
		log.WithError(err).WithField("error_type", classified.Type).Warn("Analysis request failed")
		return nil, classified
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		classified := classifyTransportError(parent, ctx, err)
		log.WithError(err).Warn("Failed to read analysis response")
		return nil, classified
	}

	log = log.WithFields(logrus.Fields{
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("Detection server returned an error status")
		return nil, apperrors.NewServerError("detection server returned an error",
			resp.StatusCode, truncate(raw, maxErrorBodyBytes), nil)
	}

	outcome, err := decodeOutcome(raw)
	if err != nil {
		log.WithError(err).Warn("Malformed detection response")
		return nil, apperrors.NewServerError("malformed detection response",
			resp.StatusCode, truncate(raw, maxErrorBodyBytes), err)
	}

	log.WithField("outcome", outcome.Status).Info("Analysis response received")
	return outcome, nil
}

func encodeMultipart(image []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, imageField, imageFileName))
	header.Set("Content-Type", imageContentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func decodeOutcome(raw []byte) (*models.AnalysisOutcome, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("response is not a JSON object")
	}

	var parsed detectResponse
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.DetectionInfo != nil && parsed.DetectionInfo.LeafCount < 0 {
		return nil, fmt.Errorf("negative leaf_count %d", parsed.DetectionInfo.LeafCount)
	}

	result := &models.AnalysisResult{
		ProcessedImage: parsed.Image,
		DetectionInfo:  parsed.DetectionInfo,
	}
	if !result.HasDetections() {
		return &models.AnalysisOutcome{Status: models.OutcomeNoDetection, Result: result}, nil
	}
	return &models.AnalysisOutcome{Status: models.OutcomeSuccess, Result: result}, nil
}

// classifyTransportError maps a failed round trip to timeout or connection.
// A deadline on the call context is a timeout; everything else, including
// caller cancellation, DNS and refused connections, is a connection error.
func classifyTransportError(parent, callCtx context.Context, err error) *apperrors.AppError {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError("detection server did not respond in time", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewTimeoutError("detection server did not respond in time", err)
	}
	if errors.Is(parent.Err(), context.Canceled) {
		return apperrors.NewConnectionError("analysis request was canceled", err)
	}
	return apperrors.NewConnectionError("could not reach detection server", err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
