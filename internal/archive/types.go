package archive

import "context"

// Config controls where sent spreadsheets are kept.
type Config struct {
	Dir       string
	KeepLast  int
	BucketURL string

	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3SessionToken string
	S3UseSSL       bool
}

// Uploader uploads one archived file.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) error
}
