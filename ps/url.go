// URL snapshot stores: local directories, S3 buckets and read-only HTTP.
package ps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/goccy/go-json"
	"github.com/nickyhof/MiniDB/core"
)

const manifestName = "manifest.json"

// S3Config overrides the default AWS credential chain.
type S3Config struct {
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string // custom S3-compatible endpoint, path style
}

type urlScheme string

const (
	schemeFile  urlScheme = "file"
	schemeS3    urlScheme = "s3"
	schemeHTTP  urlScheme = "http"
	schemeHTTPS urlScheme = "https"
	schemeLocal urlScheme = "local"
)

func detectScheme(url string) urlScheme {
	lower := strings.ToLower(url)
	switch {
	case strings.HasPrefix(lower, "s3://"):
		return schemeS3
	case strings.HasPrefix(lower, "https://"):
		return schemeHTTPS
	case strings.HasPrefix(lower, "http://"):
		return schemeHTTP
	case strings.HasPrefix(lower, "file://"):
		return schemeFile
	}
	return schemeLocal
}

// blobBackend is the raw object access a URLStore is built on. get
// reports a missing object as ErrSnapshotNotFound.
type blobBackend interface {
	get(ctx context.Context, key string) ([]byte, error)
	put(ctx context.Context, key string, data []byte) error
	remove(ctx context.Context, key string) error
}

// manifest lists the tables of the last completed save. It is written
// after every snapshot, so readers never see a half-written save.
type manifest struct {
	Tables []string  `json:"tables"`
	When   time.Time `json:"when"`
	Author string    `json:"author"`
}

// URLStore keeps snapshots as <table>.snapshot objects under a base URL.
type URLStore struct {
	url     string
	backend blobBackend
}

// NewURLStore opens a store at url: a local path, file://, s3://bucket/prefix
// or http(s):// (read only). cfg only applies to S3 and may be nil.
func NewURLStore(ctx context.Context, url string, cfg *S3Config) (*URLStore, error) {
	store := &URLStore{url: url}

	switch scheme := detectScheme(url); scheme {
	case schemeLocal, schemeFile:
		store.backend = &dirBackend{dir: strings.TrimPrefix(url, "file://")}

	case schemeHTTP, schemeHTTPS:
		store.backend = &httpBackend{
			base:   strings.TrimSuffix(url, "/"),
			client: &http.Client{Timeout: 5 * time.Minute},
		}

	case schemeS3:
		bucket, prefix, err := parseS3URL(url)
		if err != nil {
			return nil, err
		}
		client, err := getS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store.backend = &s3Backend{client: client, bucket: bucket, prefix: prefix}

	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s", scheme)
	}

	return store, nil
}

func (s *URLStore) String() string { return s.url }

func (s *URLStore) readManifest(ctx context.Context) (manifest, error) {
	var m manifest
	data, err := s.backend.get(ctx, manifestName)
	if errors.Is(err, ErrSnapshotNotFound) {
		return m, nil
	}
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: bad manifest at %s: %v", core.ErrUnreadable, s.url, err)
	}
	return m, nil
}

func (s *URLStore) WriteSnapshots(ctx context.Context, snapshots map[string][]byte, identity core.Identity) (Transaction, error) {
	previous, err := s.readManifest(ctx)
	if err != nil {
		return Transaction{}, err
	}

	next := manifest{
		When:   time.Now(),
		Author: fmt.Sprintf("%s <%s>", identity.Name, identity.Email),
	}
	for name := range snapshots {
		next.Tables = append(next.Tables, name)
	}
	slices.Sort(next.Tables)

	for _, name := range next.Tables {
		if err := s.backend.put(ctx, name+snapshotSuffix, snapshots[name]); err != nil {
			return Transaction{}, fmt.Errorf("failed to write snapshot %s: %w", name, err)
		}
	}

	data, err := json.Marshal(next)
	if err != nil {
		return Transaction{}, err
	}
	if err := s.backend.put(ctx, manifestName, data); err != nil {
		return Transaction{}, fmt.Errorf("failed to write manifest: %w", err)
	}

	for _, name := range previous.Tables {
		if _, keep := snapshots[name]; !keep {
			if err := s.backend.remove(ctx, name+snapshotSuffix); err != nil {
				return Transaction{}, fmt.Errorf("failed to remove snapshot %s: %w", name, err)
			}
		}
	}

	return Transaction{
		When:    next.When,
		Author:  next.Author,
		Message: fmt.Sprintf("Save %d table(s) to %s", len(next.Tables), s.url),
	}, nil
}

func (s *URLStore) ReadSnapshot(ctx context.Context, name string) ([]byte, error) {
	return s.backend.get(ctx, name+snapshotSuffix)
}

func (s *URLStore) ListSnapshots(ctx context.Context) ([]string, error) {
	m, err := s.readManifest(ctx)
	if err != nil {
		return nil, err
	}
	return m.Tables, nil
}

type dirBackend struct {
	dir string
}

func (b *dirBackend) get(_ context.Context, key string) ([]byte, error) {
	data, err := osReadFile(filepath.Join(b.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, key)
	}
	return data, err
}

// put writes through a temp file and a rename so a crash leaves either
// the old or the new object.
func (b *dirBackend) put(_ context.Context, key string, data []byte) error {
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.dir, "."+key+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(b.dir, key))
}

func (b *dirBackend) remove(_ context.Context, key string) error {
	err := os.Remove(filepath.Join(b.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

type httpBackend struct {
	base   string
	client *http.Client
}

func (b *httpBackend) get(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.base+"/"+key, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, key)
	}
	return nil, fmt.Errorf("HTTP request returned status %d", resp.StatusCode)
}

func (b *httpBackend) put(context.Context, string, []byte) error {
	return fmt.Errorf("%w: HTTP does not support writing", ErrReadOnly)
}

func (b *httpBackend) remove(context.Context, string) error {
	return fmt.Errorf("%w: HTTP does not support writing", ErrReadOnly)
}

// parseS3URL splits s3://bucket/prefix. The prefix may be empty.
func parseS3URL(url string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(url, "s3://")
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid S3 URL: %s", url)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

func getS3Client(ctx context.Context, cfg *S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg != nil && cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg != nil && cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg != nil && cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}

type s3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

func (b *s3Backend) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

func (b *s3Backend) get(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, key)
		}
		return nil, fmt.Errorf("failed to get S3 object: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (b *s3Backend) put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func (b *s3Backend) remove(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete S3 object: %w", err)
	}
	return nil
}

// osReadFile is swapped in tests.
var osReadFile = os.ReadFile
