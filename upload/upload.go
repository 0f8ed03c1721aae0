// Package upload hands out presigned S3 URLs for profile photos.
package upload

import (
	"context"
	"path"
	"strings"
	"time"

	"devspace-backend/errs"
	"devspace-backend/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	KeyPrefix     = "profile-pics/"
	PresignExpiry = 5 * time.Minute
)

// Presigner is the subset of the S3 presign client used here.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Uploads struct {
	presigner Presigner
	bucket    string
	now       func() time.Time
}

func New(ctx context.Context, region, bucket string) (*Uploads, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}

	return NewWithPresigner(s3.NewPresignClient(s3.NewFromConfig(cfg)), bucket), nil
}

func NewWithPresigner(presigner Presigner, bucket string) *Uploads {
	return &Uploads{presigner: presigner, bucket: bucket, now: time.Now}
}

// Key builds the object key for an uploaded file name.
func Key(now time.Time, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" {
		name = "upload"
	}
	return KeyPrefix + now.UTC().Format("20060102150405") + "-" + uuid.NewString()[:8] + "-" + name
}

// PhotoURL returns a URL the browser can PUT the photo to, and its object key.
func (u *Uploads) PhotoURL(ctx context.Context, fileName, fileType string) (string, string, error) {
	if fileName == "" || fileType == "" {
		return "", "", errs.ErrMissingUploadField
	}

	key := Key(u.now(), fileName)
	req, err := u.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(fileType),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		log.Logger.Error("presign failed", zap.String("key", key), zap.Error(err))
		return "", "", errs.ErrUpload
	}

	return req.URL, key, nil
}
