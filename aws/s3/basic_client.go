package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/relloyd/forklift/errs"
)

// NewClient returns a Client for bucket using the default AWS credential chain.
func NewClient(bucket, region, prefix string) (Client, error) {
	awsConfig := aws.NewConfig()
	awsConfig.Region = aws.String(region)
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating AWS session: %w", err)
	}
	return NewClientWithAPI(bucket, prefix, s3.New(sess)), nil
}

// NewClientWithAPI returns a Client that uses api for every call.
func NewClientWithAPI(bucket, prefix string, api s3iface.S3API) Client {
	return &basicClient{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		api:    api,
	}
}

type basicClient struct {
	bucket string
	prefix string
	api    s3iface.S3API
}

func (s *basicClient) List(ctx context.Context, prefix string) (keys []string, err error) {
	keys = make([]string, 0)
	params := &s3.ListObjectsInput{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int64(1000),
		Prefix:  aws.String(s.getKeyWithPrefix(prefix)),
	}
	err = s.api.ListObjectsPagesWithContext(ctx, params, func(page *s3.ListObjectsOutput, lastPage bool) bool {
		for _, v := range page.Contents {
			keys = append(keys, s.trimPrefix(aws.StringValue(v.Key)))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("error listing s3://%v/%v: %w", s.bucket, s.getKeyWithPrefix(prefix), err)
	}
	return keys, nil
}

func (s *basicClient) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getKeyWithPrefix(key)),
	})
	if err != nil {
		var awsErr awserr.Error
		if errors.As(err, &awsErr) && awsErr.Code() == s3.ErrCodeNoSuchKey {
			return nil, fmt.Errorf("s3://%v/%v: %w", s.bucket, s.getKeyWithPrefix(key), ErrKeyNotFound)
		}
		if request.IsErrorRetryable(err) || request.IsErrorThrottle(err) {
			return nil, errs.TransientRemote(err)
		}
		return nil, err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil { // the connection dropped mid-body
		return nil, errs.TransientRemote(fmt.Errorf("error reading s3://%v/%v: %w", s.bucket, s.getKeyWithPrefix(key), err))
	}
	return data, nil
}

func (s *basicClient) getKeyWithPrefix(key string) string {
	if s.prefix != "" {
		return s.prefix + "/" + strings.TrimLeft(key, "/") // ensure one slash after prefix.
	}
	return key
}

func (s *basicClient) trimPrefix(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+"/")
}
