package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"studypool-backend/internal/config"
)

// ErrObjectNotFound 오브젝트가 없음
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo HeadObject 결과
type ObjectInfo struct {
	Size        int64
	ContentType string
}

// S3Service 파일 오브젝트 저장소 (S3)
//
// 모든 메서드는 파일 키(<poolID>/<uuid><ext>)를 받고, 버킷 안에서는 f/<파일 키> 로 저장한다.
type S3Service struct {
	client        *s3.Client
	presign       *s3.PresignClient
	bucket        string
	presignExpiry time.Duration
	publicBaseURL string
}

// NewS3Service S3Service 생성
func NewS3Service(ctx context.Context, cfg config.S3Config) (*S3Service, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("s3 bucket is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Service{
		client:        client,
		presign:       s3.NewPresignClient(client),
		bucket:        cfg.BucketName,
		presignExpiry: cfg.PresignExpiry,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// ObjectKey 파일 키 -> 버킷 오브젝트 키
func ObjectKey(fileKey string) string {
	return "f/" + fileKey
}

// PublicURL 클라이언트가 /f/ 뒤에서 파일 키를 꺼낼 수 있는 공개 주소
func (s *S3Service) PublicURL(fileKey string) string {
	return s.publicBaseURL + "/" + ObjectKey(fileKey)
}

// PresignPut 업로드용 presigned PUT URL 발급
func (s *S3Service) PresignPut(ctx context.Context, fileKey, contentType string, size int64) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(ObjectKey(fileKey)),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}, s3.WithPresignExpires(s.presignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", fileKey, err)
	}
	return req.URL, nil
}

// Stat 업로드된 오브젝트 확인
func (s *S3Service) Stat(ctx context.Context, fileKey string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ObjectKey(fileKey)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("head object %s: %w", fileKey, err)
	}
	return &ObjectInfo{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

// Delete 오브젝트 삭제 (없는 키도 성공)
func (s *S3Service) Delete(ctx context.Context, fileKey string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ObjectKey(fileKey)),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", fileKey, err)
	}
	return nil
}
