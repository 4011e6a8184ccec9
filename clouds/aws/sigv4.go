// Package aws implements the small slice of AWS we need: Signature V4
// request signing, S3 object I/O, and presigned URLs used to hand
// short-lived read access to other services.
package aws

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dbcrossbar/dbcrossbar/config"
)

// Credentials are the standard AWS credentials, optionally with an STS
// session token.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// CredentialsFromEnv reads the standard environment variables.
func CredentialsFromEnv() (Credentials, error) {
	id, ok := config.Credential("AWS_ACCESS_KEY_ID")
	if !ok {
		return Credentials{}, fmt.Errorf("aws: AWS_ACCESS_KEY_ID is not set")
	}
	secret, ok := config.Credential("AWS_SECRET_ACCESS_KEY")
	if !ok {
		return Credentials{}, fmt.Errorf("aws: AWS_SECRET_ACCESS_KEY is not set")
	}
	token, _ := config.Credential("AWS_SESSION_TOKEN")
	return Credentials{AccessKeyID: id, SecretAccessKey: secret, SessionToken: token}, nil
}

// Region reads AWS_REGION or AWS_DEFAULT_REGION.
func Region() (string, error) {
	if r, ok := config.Credential("AWS_REGION"); ok {
		return r, nil
	}
	if r, ok := config.Credential("AWS_DEFAULT_REGION"); ok {
		return r, nil
	}
	return "", fmt.Errorf("aws: AWS_REGION is not set")
}

const (
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	unsignedPayload  = "UNSIGNED-PAYLOAD"
	timeFormat       = "20060102T150405Z"
	dateFormat       = "20060102"
)

// SignRequest signs req in place with SigV4. payloadHash is the hex
// SHA-256 of the body, or UNSIGNED-PAYLOAD for streamed uploads.
func SignRequest(req *http.Request, creds Credentials, region, service, payloadHash string, now time.Time) {
	now = now.UTC()
	amzDate := now.Format(timeFormat)
	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("x-amz-content-sha256", payloadHash)
	if creds.SessionToken != "" {
		req.Header.Set("x-amz-security-token", creds.SessionToken)
	}
	if req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.URL.Host)
	}

	canonicalHeaders, signedHeaders := canonicalizeHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQuery(req.URL),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := fmt.Sprintf("%s/%s/%s/aws4_request", now.Format(dateFormat), region, service)
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	signature := hex.EncodeToString(hmacSHA256(signingKey(creds, now, region, service), []byte(stringToSign)))
	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		creds.AccessKeyID, scope, signedHeaders, signature))
}

// PresignGetURL builds a presigned GET URL for an S3 object, valid for
// the given expiry; no default expiry is applied. Callers that cannot
// accept the session-token form must check Credentials.SessionToken
// themselves and reject it.
func PresignGetURL(u S3URL, creds Credentials, region string, expiry time.Duration, now time.Time) string {
	now = now.UTC()
	amzDate := now.Format(timeFormat)
	scope := fmt.Sprintf("%s/%s/s3/aws4_request", now.Format(dateFormat), region)
	host := u.Bucket + ".s3." + region + ".amazonaws.com"
	path := "/" + u.Path

	q := url.Values{}
	q.Set("X-Amz-Algorithm", "AWS4-HMAC-SHA256")
	q.Set("X-Amz-Credential", creds.AccessKeyID+"/"+scope)
	q.Set("X-Amz-Date", amzDate)
	q.Set("X-Amz-Expires", fmt.Sprintf("%d", int(expiry.Seconds())))
	q.Set("X-Amz-SignedHeaders", "host")
	if creds.SessionToken != "" {
		q.Set("X-Amz-Security-Token", creds.SessionToken)
	}

	canonicalRequest := strings.Join([]string{
		http.MethodGet,
		uriEncodePath(path),
		strings.ReplaceAll(q.Encode(), "+", "%20"),
		"host:" + host + "\n",
		"host",
		unsignedPayload,
	}, "\n")
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")
	signature := hex.EncodeToString(hmacSHA256(signingKey(creds, now, region, "s3"), []byte(stringToSign)))
	q.Set("X-Amz-Signature", signature)
	return "https://" + host + uriEncodePath(path) + "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}

func signingKey(creds Credentials, now time.Time, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+creds.SecretAccessKey), []byte(now.Format(dateFormat)))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte("aws4_request"))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HexSHA256 exposes the payload hashing used by callers that buffer
// bodies before signing.
func HexSHA256(data []byte) string { return hexSHA256(data) }

func canonicalizeHeaders(req *http.Request) (canonical, signed string) {
	type kv struct{ k, v string }
	var pairs []kv
	pairs = append(pairs, kv{"host", req.URL.Host})
	for name, values := range req.Header {
		lower := strings.ToLower(name)
		if lower == "host" || lower == "authorization" {
			continue
		}
		if lower == "x-amz-date" || lower == "x-amz-content-sha256" ||
			lower == "x-amz-security-token" || strings.HasPrefix(lower, "x-amz-") ||
			lower == "content-type" {
			pairs = append(pairs, kv{lower, strings.TrimSpace(strings.Join(values, ","))})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })
	var cb, sb strings.Builder
	for i, p := range pairs {
		fmt.Fprintf(&cb, "%s:%s\n", p.k, p.v)
		if i > 0 {
			sb.WriteString(";")
		}
		sb.WriteString(p.k)
	}
	return cb.String(), sb.String()
}

func canonicalURI(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return uriEncodePath(u.Path)
}

// uriEncodePath percent-encodes a path per SigV4 rules, leaving '/'
// unescaped.
func uriEncodePath(path string) string {
	const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~/"
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		if strings.IndexByte(unreserved, c) >= 0 {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func canonicalQuery(u *url.URL) string {
	q := u.Query()
	return strings.ReplaceAll(q.Encode(), "+", "%20")
}
