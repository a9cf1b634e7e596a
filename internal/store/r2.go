package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/driverscout/driverscout/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"

	appconfig "github.com/driverscout/driverscout/internal/config"
)

// S3Client is the subset of the S3 API the R2 store needs; narrowed for
// mocking in tests.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// R2Store keeps snapshots as objects named <prefix>/<category>/<date>.csv in
// an R2 bucket, with the same contract as LocalStore.
type R2Store struct {
	s3         S3Client
	bucketName string
	prefix     string
}

func NewR2Store(cfg appconfig.Settings, prefix string) *R2Store {
	return &R2Store{
		s3:         initS3Client(cfg),
		bucketName: cfg.R2Bucket,
		prefix:     prefix,
	}
}

func NewR2StoreWithClient(bucketName, prefix string, s3Client S3Client) *R2Store {
	return &R2Store{
		s3:         s3Client,
		bucketName: bucketName,
		prefix:     prefix,
	}
}

func initS3Client(cfg appconfig.Settings) *s3.Client {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		log.Fatal(err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.R2Endpoint)
	})
}

func (s *R2Store) csvKey(category string, date time.Time) string {
	return path.Join(s.prefix, category, dateKey(date)+SNAPSHOT_EXT)
}

func (s *R2Store) indexKey(category string, date time.Time) string {
	return path.Join(s.prefix, category, dateKey(date)+SNAPSHOT_INDEX_EXT)
}

func (s *R2Store) Store(category string, date time.Time, rows []models.NormalizedRow) error {
	csvBytes, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return fmt.Errorf("failed to marshal csv: %w", err)
	}

	key := s.csvKey(category, date)
	_, err = s.s3.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(csvBytes),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	logrus.Infof("Stored %d rows for %s to bucket: %s with key: %s", len(rows), category, s.bucketName, key)

	// Derived index; CSV remains authoritative so failure here is advisory.
	indexBytes, err := json.Marshal(rowsToMap(rows))
	if err == nil {
		_, err = s.s3.PutObject(context.TODO(), &s3.PutObjectInput{
			Bucket: aws.String(s.bucketName),
			Key:    aws.String(s.indexKey(category, date)),
			Body:   bytes.NewReader(indexBytes),
		})
	}
	if err != nil {
		logrus.WithError(err).Warnf("Failed to write snapshot index for %s on %s", category, dateKey(date))
	}
	return nil
}

func (s *R2Store) Exists(category string, date time.Time) bool {
	_, err := s.s3.HeadObject(context.TODO(), &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.csvKey(category, date)),
	})
	return err == nil
}

func (s *R2Store) Dates(category string) ([]time.Time, error) {
	listPrefix := path.Join(s.prefix, category) + "/"

	var dates []time.Time
	var continuation *string
	for {
		out, err := s.s3.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucketName),
			Prefix:            aws.String(listPrefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", listPrefix, err)
		}
		for _, obj := range out.Contents {
			name := path.Base(aws.ToString(obj.Key))
			if !strings.HasSuffix(name, SNAPSHOT_EXT) {
				continue
			}
			date, ok := parseDateKey(strings.TrimSuffix(name, SNAPSHOT_EXT))
			if !ok {
				logrus.Warnf("Skipping snapshot with unexpected name: %s", name)
				continue
			}
			dates = append(dates, date)
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			return dates, nil
		}
		continuation = out.NextContinuationToken
	}
}

func (s *R2Store) FindClosest(category string, target time.Time) (time.Time, error) {
	dates, err := s.Dates(category)
	if err != nil {
		return time.Time{}, err
	}
	return closestDate(dates, target)
}

func (s *R2Store) OldestDate(category string) (time.Time, error) {
	dates, err := s.Dates(category)
	if err != nil {
		return time.Time{}, err
	}
	return oldestDate(dates)
}

func (s *R2Store) LoadRows(category string, date time.Time) ([]models.NormalizedRow, error) {
	key := s.csvKey(category, date)
	resp, err := s.s3.GetObject(context.TODO(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	var rows []models.NormalizedRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s/%s: %w", category, dateKey(date), err)
	}
	return rows, nil
}

func (s *R2Store) LoadMap(category string, date time.Time) (map[int]models.NormalizedRow, error) {
	resp, err := s.s3.GetObject(context.TODO(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.indexKey(category, date)),
	})
	if err == nil {
		defer resp.Body.Close()
		var m map[int]models.NormalizedRow
		decoder := json.NewDecoder(resp.Body)
		if err := decoder.Decode(&m); err == nil {
			return m, nil
		}
		logrus.Warnf("Failed to decode snapshot index for %s on %s, falling back to CSV", category, dateKey(date))
	}

	rows, err := s.LoadRows(category, date)
	if err != nil {
		return nil, err
	}
	return rowsToMap(rows), nil
}
