package aws

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testCreds() Credentials {
	return Credentials{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
	}
}

func TestSignRequestSetsAuthorization(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://bucket.s3.us-east-1.amazonaws.com/key", nil)
	require.NoError(t, err)
	now := time.Date(2023, 5, 15, 12, 0, 0, 0, time.UTC)
	SignRequest(req, testCreds(), "us-east-1", "s3", emptyPayloadHash, now)

	auth := req.Header.Get("Authorization")
	require.Contains(t, auth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20230515/us-east-1/s3/aws4_request")
	require.Contains(t, auth, "SignedHeaders=host;x-amz-content-sha256;x-amz-date")
	require.Contains(t, auth, "Signature=")
	require.Equal(t, "20230515T120000Z", req.Header.Get("x-amz-date"))
}

func TestSignRequestIsDeterministic(t *testing.T) {
	now := time.Date(2023, 5, 15, 12, 0, 0, 0, time.UTC)
	sig := func() string {
		req, _ := http.NewRequest(http.MethodGet, "https://b.s3.us-east-1.amazonaws.com/k", nil)
		SignRequest(req, testCreds(), "us-east-1", "s3", emptyPayloadHash, now)
		return req.Header.Get("Authorization")
	}
	require.Equal(t, sig(), sig())
}

func TestSessionTokenIsSigned(t *testing.T) {
	creds := testCreds()
	creds.SessionToken = "FwoGZXIvYXdzEXAMPLE"
	req, _ := http.NewRequest(http.MethodGet, "https://b.s3.us-east-1.amazonaws.com/k", nil)
	SignRequest(req, creds, "us-east-1", "s3", emptyPayloadHash, time.Now())
	require.Equal(t, creds.SessionToken, req.Header.Get("x-amz-security-token"))
	require.Contains(t, req.Header.Get("Authorization"), "x-amz-security-token")
}

func TestPresignGetURL(t *testing.T) {
	now := time.Date(2023, 5, 15, 12, 0, 0, 0, time.UTC)
	u := PresignGetURL(S3URL{Bucket: "bucket", Path: "dir/file.csv"}, testCreds(), "us-east-1", time.Hour, now)
	require.True(t, strings.HasPrefix(u, "https://bucket.s3.us-east-1.amazonaws.com/dir/file.csv?"))
	require.Contains(t, u, "X-Amz-Expires=3600")
	require.Contains(t, u, "X-Amz-Signature=")
	require.NotContains(t, u, "X-Amz-Security-Token")

	creds := testCreds()
	creds.SessionToken = "tok"
	u = PresignGetURL(S3URL{Bucket: "bucket", Path: "f"}, creds, "us-east-1", time.Hour, now)
	require.Contains(t, u, "X-Amz-Security-Token=tok")
}

func TestParseS3URL(t *testing.T) {
	u, err := ParseS3URL("s3://bucket/dir/file.csv")
	require.NoError(t, err)
	require.Equal(t, S3URL{Bucket: "bucket", Path: "dir/file.csv"}, u)
	require.Equal(t, "s3://bucket/dir/file.csv", u.String())

	_, err = ParseS3URL("gs://bucket/x")
	require.Error(t, err)
	_, err = ParseS3URL("s3://")
	require.Error(t, err)
}

func TestURIEncodePath(t *testing.T) {
	require.Equal(t, "/a/b%20c/d%2Be", uriEncodePath("/a/b c/d+e"))
	require.Equal(t, "/plain", uriEncodePath("/plain"))
}
