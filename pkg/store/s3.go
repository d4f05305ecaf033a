package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/waweb-dev/waweb/pkg/signal"
)

// ObjectAPI is the subset of the S3 client used by S3Store.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config describes how to reach the bucket.
type S3Config struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint overrides the service URL (MinIO, LocalStack). Path-style
	// addressing is used when set.
	Endpoint string

	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store stores the JSON documents as objects under a key prefix.
//
// Example usage:
//
//	st, _ := store.NewS3StoreFromConfig(ctx, store.S3Config{
//	    Bucket: "my-bucket",
//	    Prefix: "waweb/",
//	})
//	mgr, _ := signal.NewManager(ctx, st, st)
type S3Store struct {
	client ObjectAPI
	bucket string
	prefix string

	mu     sync.RWMutex
	closed bool
}

// NewS3Store creates a store over an existing client.
func NewS3Store(client ObjectAPI, bucket, prefix string) *S3Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// NewS3StoreFromConfig builds an S3 client from cfg and the environment.
func NewS3StoreFromConfig(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("store: s3 bucket is required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("store: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, cfg.Bucket, cfg.Prefix), nil
}

// LoadIdentity reads keys/identity_key.json.
func (s *S3Store) LoadIdentity(ctx context.Context) (*signal.IdentityKeyPair, error) {
	var id signal.IdentityKeyPair
	ok, err := s.get(ctx, identityDoc, &id)
	if err != nil || !ok {
		return nil, err
	}
	return &id, nil
}

// SaveIdentity writes keys/identity_key.json.
func (s *S3Store) SaveIdentity(ctx context.Context, id *signal.IdentityKeyPair) error {
	return s.put(ctx, identityDoc, id)
}

// LoadPreKeys reads keys/prekeys.json.
func (s *S3Store) LoadPreKeys(ctx context.Context) (*signal.PreKeyState, error) {
	var st signal.PreKeyState
	ok, err := s.get(ctx, preKeysDoc, &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

// SavePreKeys writes keys/prekeys.json.
func (s *S3Store) SavePreKeys(ctx context.Context, st *signal.PreKeyState) error {
	return s.put(ctx, preKeysDoc, st)
}

// LoadSession reads sessions/<peer>.json.
func (s *S3Store) LoadSession(ctx context.Context, peerID string) (*signal.Session, error) {
	name, err := sessionDocName(peerID)
	if err != nil {
		return nil, err
	}
	var sess signal.Session
	ok, err := s.get(ctx, sessionsDir+name+docSuffix, &sess)
	if err != nil || !ok {
		return nil, err
	}
	return &sess, nil
}

// SaveSession writes sessions/<peer>.json.
func (s *S3Store) SaveSession(ctx context.Context, sess *signal.Session) error {
	name, err := sessionDocName(sess.PeerID)
	if err != nil {
		return err
	}
	return s.put(ctx, sessionsDir+name+docSuffix, sess)
}

// DeleteSession removes sessions/<peer>.json. S3 deletes are idempotent.
func (s *S3Store) DeleteSession(ctx context.Context, peerID string) error {
	if err := s.check(); err != nil {
		return err
	}
	name, err := sessionDocName(peerID)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + sessionsDir + name + docSuffix),
	})
	if err != nil {
		return fmt.Errorf("store: s3 delete: %w", err)
	}
	return nil
}

// ListSessions lists session objects and returns their peer ids.
func (s *S3Store) ListSessions(ctx context.Context) ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + sessionsDir),
	})
	var peers []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("store: s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, docSuffix) {
				continue
			}
			var head struct {
				PeerID string `json:"peerId"`
			}
			ok, err := s.getKey(ctx, key, &head)
			if err != nil {
				return nil, err
			}
			if ok && head.PeerID != "" {
				peers = append(peers, head.PeerID)
			}
		}
	}
	return peers, nil
}

// Close marks the store closed.
func (s *S3Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *S3Store) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *S3Store) put(ctx context.Context, doc string, v any) error {
	if err := s.check(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(s.prefix + doc),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("store: s3 put: %w", err)
	}
	return nil
}

func (s *S3Store) get(ctx context.Context, doc string, v any) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	return s.getKey(ctx, s.prefix+doc, v)
}

func (s *S3Store) getKey(ctx context.Context, key string, v any) (bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return false, nil
		}
		return false, fmt.Errorf("store: s3 get: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}
