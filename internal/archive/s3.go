package archive

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
)

const defaultS3Region = "us-east-1"

// S3Config holds S3 uploader parameters for archive uploads.
type S3Config struct {
	BucketURL    string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UseSSL       bool
	ContentType  string
}

// bucketURL is a parsed s3://bucket/prefix destination.
type bucketURL struct {
	Bucket string
	Prefix string
}

// parseBucketURL accepts s3://bucket and s3://bucket/some/prefix/. Query
// strings, fragments and credentials in the URL are rejected.
func parseBucketURL(raw string) (bucketURL, error) {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return bucketURL{}, fmt.Errorf("s3: bucket url %q must start with s3://", raw)
	}
	if strings.ContainsAny(rest, "?#@") {
		return bucketURL{}, fmt.Errorf("s3: bucket url %q may only hold a bucket and a prefix", raw)
	}

	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return bucketURL{}, fmt.Errorf("s3: bucket url %q has no bucket", raw)
	}
	prefix = path.Clean("/" + prefix)[1:]
	return bucketURL{Bucket: bucket, Prefix: prefix}, nil
}

// Key is the object key a file named name is stored under.
func (b bucketURL) Key(name string) string {
	if b.Prefix == "" {
		return name
	}
	return b.Prefix + "/" + name
}

// Object is the s3:// URI for the object named name.
func (b bucketURL) Object(name string) string {
	return "s3://" + b.Bucket + "/" + b.Key(name)
}

// endpointURL returns the --endpoint-url value for a custom S3 endpoint, or
// "" for AWS itself. A bare host gets http or https from useSSL.
func endpointURL(endpoint string, useSSL bool) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", nil
	}
	if !strings.Contains(endpoint, "://") {
		scheme := "https"
		if !useSSL {
			scheme = "http"
		}
		endpoint = scheme + "://" + endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("s3: endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("s3: endpoint scheme %q is not http or https", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("s3: endpoint %q has no host", endpoint)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// S3Uploader uploads archived reports using the AWS CLI (`aws s3 cp`).
type S3Uploader struct {
	dest     bucketURL
	endpoint string
	cfg      S3Config
}

// NewS3Uploader validates cfg and checks that the aws CLI is installed.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	dest, err := parseBucketURL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	endpoint, err := endpointURL(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("s3: access key and secret key are required")
	}
	if _, err := exec.LookPath("aws"); err != nil {
		return nil, errors.New("s3: aws cli not found in PATH")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = defaultS3Region
	}
	return &S3Uploader{dest: dest, endpoint: endpoint, cfg: cfg}, nil
}

// UploadFile copies localPath to the bucket under its base name.
func (u *S3Uploader) UploadFile(ctx context.Context, localPath string) error {
	name := filepath.Base(localPath)
	cmd := exec.CommandContext(ctx, "aws", u.args(localPath)...)
	cmd.Env = append(os.Environ(), u.env()...)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("s3: upload %s: %w: %s", u.dest.Object(name), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (u *S3Uploader) args(localPath string) []string {
	args := []string{
		"s3", "cp", localPath, u.dest.Object(filepath.Base(localPath)),
		"--region", u.cfg.Region,
		"--only-show-errors",
	}
	if u.cfg.ContentType != "" {
		args = append(args, "--content-type", u.cfg.ContentType)
	}
	if u.endpoint != "" {
		args = append(args, "--endpoint-url", u.endpoint)
	}
	return args
}

// env holds the credentials for the aws process. Temporary credentials
// carry a session token as well.
func (u *S3Uploader) env() []string {
	env := []string{
		"AWS_ACCESS_KEY_ID=" + u.cfg.AccessKey,
		"AWS_SECRET_ACCESS_KEY=" + u.cfg.SecretKey,
		"AWS_DEFAULT_REGION=" + u.cfg.Region,
	}
	if token := strings.TrimSpace(u.cfg.SessionToken); token != "" {
		env = append(env, "AWS_SESSION_TOKEN="+token)
	}
	return env
}
