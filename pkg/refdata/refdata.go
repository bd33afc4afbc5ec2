// Package refdata retrieves the Darwin timetable reference file from
// its S3 bucket and the CORPUS location extract from disk.
package refdata

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/text/encoding/charmap"

	"github.com/ironswallow/ironswallow/pkg/darwin"
	"github.com/ironswallow/ironswallow/pkg/darwin/xmlparse"
	"github.com/ironswallow/ironswallow/pkg/log"
	"github.com/ironswallow/ironswallow/pkg/store"
)

// Config carries the S3 coordinates of the reference bucket.
type Config struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
}

// Client fetches reference documents.
type Client struct {
	cfg Config
	s3  *s3.Client
}

// NewClient builds a client with static credentials.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &Client{cfg: cfg, s3: s3.NewFromConfig(awsCfg)}, nil
}

// FetchTimetableRef downloads and decodes the newest reference file in
// the bucket (keys containing "ref", last in key order).
func (c *Client) FetchTimetableRef(ctx context.Context) (*xmlparse.Node, error) {
	logger := log.WithComponent("refdata")

	listing, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", c.cfg.Bucket, err)
	}

	var keys []string
	for _, obj := range listing.Contents {
		if obj.Key != nil && strings.Contains(*obj.Key, "ref") {
			keys = append(keys, *obj.Key)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no reference files in %s", c.cfg.Bucket)
	}
	sort.Strings(keys)
	key := keys[len(keys)-1]
	logger.Info().Str("key", key).Msg("retrieving timetable reference")

	obj, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}
	defer obj.Body.Close()

	gz, err := gzip.NewReader(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", key, err)
	}
	defer gz.Close()

	doc, err := darwin.NewParser().Parse(gz)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return doc, nil
}

// corpusDocument mirrors the CORPUS extract's envelope.
type corpusDocument struct {
	TiplocData []store.CorpusEntry `json:"TIPLOCDATA"`
}

// LoadCorpus reads datasets/corpus.json, which Network Rail publishes
// in ISO-8859-1.
func LoadCorpus(dir string) ([]store.CorpusEntry, error) {
	path := filepath.Join(dir, "corpus.json")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus extract: %w", err)
	}
	defer f.Close()

	decoded := charmap.ISO8859_1.NewDecoder().Reader(f)
	data, err := io.ReadAll(decoded)
	if err != nil {
		return nil, fmt.Errorf("reading corpus extract: %w", err)
	}

	var doc corpusDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding corpus extract: %w", err)
	}
	return doc.TiplocData, nil
}
