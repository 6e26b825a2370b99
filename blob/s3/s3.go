package s3

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"github.com/imagevault/imagevault/blob"
)

// Store is a blob.Store over one S3 bucket.
type Store struct {
	bucket string
	svc    *awss3.S3
}

func New(sess *session.Session, bucket string) *Store {
	return &Store{
		bucket: bucket,
		svc:    awss3.New(sess),
	}
}

func (s *Store) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := s.svc.GetObjectWithContext(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case awss3.ErrCodeNoSuchKey, "NotFound":
				return nil, blob.ErrNoSuchObject
			}
		}
		return nil, errors.Wrapf(err, "fetching s3://%s/%s", s.bucket, path)
	}
	return out.Body, nil
}

func (s *Store) Put(ctx context.Context, req blob.PutRequest) error {
	_, err := s.svc.PutObjectWithContext(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(req.Path),
		Body:          req.Body,
		ContentLength: aws.Int64(req.Size),
		ContentType:   aws.String(req.MimeType),
	})
	if err != nil {
		return errors.Wrapf(err, "uploading s3://%s/%s", s.bucket, req.Path)
	}
	return nil
}

var _ blob.Store = &Store{}
