package store

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"
)

const defaultArchiveRequestTimeout = 60 * time.Second

// ArchiveConfig describes the S3-compatible bucket finished recording
// artifacts are copied into. Leaving Endpoint or Bucket empty disables
// archival.
type ArchiveConfig struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	Prefix         string
	PublicEndpoint string
	RequestTimeout time.Duration
}

// ArchiveRef identifies a stored artifact.
type ArchiveRef struct {
	Key string
	URL string
}

// ArchiveClient copies recording artifacts to object storage.
type ArchiveClient interface {
	Enabled() bool
	Store(ctx context.Context, key, contentType, path string) (ArchiveRef, error)
	Delete(ctx context.Context, key string) error
}

type noopArchiveClient struct{}

func (noopArchiveClient) Enabled() bool { return false }

func (noopArchiveClient) Store(ctx context.Context, key, contentType, path string) (ArchiveRef, error) {
	return ArchiveRef{}, nil
}

func (noopArchiveClient) Delete(ctx context.Context, key string) error { return nil }

// NewArchiveClient builds an archival client for the configured bucket, or a
// disabled noop client when no bucket is configured.
func NewArchiveClient(cfg ArchiveConfig) ArchiveClient {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultArchiveRequestTimeout
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if bucket == "" || endpoint == "" {
		return noopArchiveClient{}
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	if strings.Contains(endpoint, "://") {
		if parsed, err := url.Parse(endpoint); err == nil {
			endpoint = parsed.Host
		}
	}
	baseURL := &url.URL{Scheme: scheme, Host: endpoint}
	if baseURL.Host == "" {
		return noopArchiveClient{}
	}
	cfg.Bucket = bucket
	return &s3ArchiveClient{
		cfg:        cfg,
		endpoint:   baseURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type s3ArchiveClient struct {
	cfg        ArchiveConfig
	endpoint   *url.URL
	httpClient *http.Client
}

func (c *s3ArchiveClient) Enabled() bool { return true }

// Store streams the artifact at path into the bucket. The payload is signed
// as UNSIGNED-PAYLOAD so the file never has to be buffered or hashed twice.
func (c *s3ArchiveClient) Store(ctx context.Context, key, contentType, path string) (ArchiveRef, error) {
	file, err := os.Open(path)
	if err != nil {
		return ArchiveRef{}, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return ArchiveRef{}, fmt.Errorf("stat artifact %s: %w", path, err)
	}

	finalKey := c.applyPrefix(key)
	target := c.objectURL(finalKey)
	request, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), file)
	if err != nil {
		return ArchiveRef{}, fmt.Errorf("create upload request: %w", err)
	}
	request.ContentLength = info.Size()
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if err := c.signRequest(request, unsignedPayloadHash); err != nil {
		return ArchiveRef{}, err
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return ArchiveRef{}, fmt.Errorf("upload object %s: %w", finalKey, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return ArchiveRef{}, fmt.Errorf("upload object %s: unexpected status %d", finalKey, response.StatusCode)
	}
	return ArchiveRef{Key: finalKey, URL: c.publicURL(finalKey)}, nil
}

func (c *s3ArchiveClient) Delete(ctx context.Context, key string) error {
	finalKey := c.applyPrefix(key)
	target := c.objectURL(finalKey)
	request, err := http.NewRequestWithContext(ctx, http.MethodDelete, target.String(), nil)
	if err != nil {
		return fmt.Errorf("create delete request: %w", err)
	}
	if err := c.signRequest(request, emptyPayloadHash); err != nil {
		return err
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("delete object %s: %w", finalKey, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("delete object %s: unexpected status %d", finalKey, response.StatusCode)
}

func (c *s3ArchiveClient) applyPrefix(key string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	prefix := strings.Trim(strings.TrimSpace(c.cfg.Prefix), "/")
	if prefix == "" {
		return trimmed
	}
	if trimmed == "" {
		return prefix
	}
	if trimmed == prefix || strings.HasPrefix(trimmed, prefix+"/") {
		return trimmed
	}
	return prefix + "/" + trimmed
}

func (c *s3ArchiveClient) objectURL(finalKey string) *url.URL {
	path := "/" + strings.TrimLeft(c.cfg.Bucket, "/")
	if trimmedKey := strings.TrimLeft(finalKey, "/"); trimmedKey != "" {
		path += "/" + trimmedKey
	}
	u := *c.endpoint
	u.Path = path
	return &u
}

func (c *s3ArchiveClient) publicURL(key string) string {
	base := strings.TrimSpace(c.cfg.PublicEndpoint)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

func (c *s3ArchiveClient) signRequest(req *http.Request, payloadHash string) error {
	req.Host = req.URL.Host
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("x-amz-content-sha256", payloadHash)
	accessKey := strings.TrimSpace(c.cfg.AccessKey)
	secretKey := strings.TrimSpace(c.cfg.SecretKey)
	if accessKey == "" || secretKey == "" {
		return nil
	}
	region := strings.TrimSpace(c.cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	now := time.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")
	req.Header.Set("x-amz-date", amzDate)
	canonicalHeaders, signedHeaders := canonicalizeHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQuery(req.URL),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")
	hash := sha256.Sum256([]byte(canonicalRequest))
	scope := strings.Join([]string{dateStamp, region, "s3", "aws4_request"}, "/")
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		hex.EncodeToString(hash[:]),
	}, "\n")
	signingKey := deriveSigningKey(secretKey, dateStamp, region)
	signature := hmacSHA256Hex(signingKey, stringToSign)
	authorization := fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		accessKey,
		scope,
		signedHeaders,
		signature,
	)
	req.Header.Set("Authorization", authorization)
	return nil
}

func canonicalizeHeaders(req *http.Request) (string, string) {
	headerMap := make(map[string][]string)
	for key, values := range req.Header {
		lower := strings.ToLower(key)
		if lower == "authorization" {
			continue
		}
		cleaned := make([]string, 0, len(values))
		for _, v := range values {
			cleaned = append(cleaned, strings.TrimSpace(v))
		}
		headerMap[lower] = cleaned
	}
	if _, ok := headerMap["host"]; !ok && req.Host != "" {
		headerMap["host"] = []string{req.Host}
	}
	keys := make([]string, 0, len(headerMap))
	for key := range headerMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var builder strings.Builder
	var signed []string
	for _, key := range keys {
		values := headerMap[key]
		builder.WriteString(key)
		builder.WriteByte(':')
		builder.WriteString(strings.Join(values, ","))
		builder.WriteByte('\n')
		signed = append(signed, key)
	}
	return builder.String(), strings.Join(signed, ";")
}

func canonicalURI(u *url.URL) string {
	if u == nil {
		return "/"
	}
	path := u.EscapedPath()
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

func canonicalQuery(u *url.URL) string {
	if u == nil {
		return ""
	}
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil || len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var builder strings.Builder
	for idx, key := range keys {
		if idx > 0 {
			builder.WriteByte('&')
		}
		sort.Strings(values[key])
		for vIdx, value := range values[key] {
			if vIdx > 0 {
				builder.WriteByte('&')
			}
			builder.WriteString(url.QueryEscape(key))
			builder.WriteByte('=')
			builder.WriteString(url.QueryEscape(value))
		}
	}
	return builder.String()
}

func deriveSigningKey(secret, dateStamp, region string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte("s3"))
	return hmacSHA256(kService, []byte("aws4_request"))
}

func hmacSHA256(key []byte, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func hmacSHA256Hex(key []byte, data string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

const unsignedPayloadHash = "UNSIGNED-PAYLOAD"

var emptyPayloadHash = hashSHA256Hex(nil)

func hashSHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
