package s3

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/relloyd/forklift/constants"
	"github.com/relloyd/forklift/rdbms/shared"
)

// Bucket identifies the bucket and prefix holding import files.
type Bucket struct {
	Name   string `errorTxt:"bucket name" mandatory:"yes"`
	Prefix string `errorTxt:"bucket prefix"`
	Region string `errorTxt:"bucket region" mandatory:"yes"`
}

// NewBucket reads the bucket from an s3 connection.
func NewBucket(c shared.ConnectionDetails) (Bucket, error) {
	if c.Type != constants.ConnectionTypeS3 {
		return Bucket{}, fmt.Errorf("connection %v is of type %q, not %q", c.LogicalName, c.Type, constants.ConnectionTypeS3)
	}
	if dsn := c.Dsn(); dsn != "" {
		return ParseDSN(dsn, c.Data["region"])
	}
	return Bucket{Name: c.Data["name"], Prefix: strings.Trim(c.Data["prefix"], "/"), Region: c.Data["region"]}, nil
}

// GetMap adds the bucket fields to m, creating it if nil.
func (b Bucket) GetMap(m map[string]string) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	m["name"] = b.Name
	m["prefix"] = b.Prefix
	m["region"] = b.Region
	return m
}

// NewClient returns a Client for the bucket.
func (b Bucket) NewClient() (Client, error) {
	return NewClient(b.Name, b.Region, b.Prefix)
}

// ParseDSN expects bucketPrefix to be of the form [s3://]<bucket>/<prefix>
// It returns a Bucket populated with the components of bucketPrefix and the supplied region.
func ParseDSN(bucketPrefix string, region string) (retval Bucket, err error) {
	expectedScheme := "s3"
	if !strings.Contains(bucketPrefix, "://") {
		bucketPrefix = expectedScheme + "://" + bucketPrefix
	}
	s3url, err := url.Parse(bucketPrefix)
	if err != nil {
		return retval, fmt.Errorf("error parsing S3 URL: %v", err)
	}
	if s3url.Scheme != expectedScheme {
		return retval, fmt.Errorf("expected S3 URL scheme %q but got %q", expectedScheme, s3url.Scheme)
	}
	if region == "" {
		return retval, fmt.Errorf("value expected for bucket region")
	}
	retval.Name = s3url.Host
	if retval.Name == "" {
		return retval, fmt.Errorf("DSN failed to parse bucket name")
	}
	retval.Prefix = strings.Trim(s3url.Path, "/")
	retval.Region = region
	return
}
