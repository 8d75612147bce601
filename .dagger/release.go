package main

import (
	"context"
	"fmt"
	"path"

	"dagger/lmgate/internal/dagger"
)

// bucket holds the credentials of an S3-compatible artifact bucket.
type bucket struct {
	endpoint        *dagger.Secret
	name            *dagger.Secret
	accessKeyID     *dagger.Secret
	secretAccessKey *dagger.Secret
}

// sync copies artifacts under prefix with the AWS CLI.
func (b *bucket) sync(ctx context.Context, artifacts *dagger.Directory, prefix string) error {
	name, err := b.name.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("reading bucket name: %w", err)
	}
	endpoint, err := b.endpoint.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("reading bucket endpoint: %w", err)
	}

	_, err = dag.Container().
		From("amazon/aws-cli:latest").
		WithSecretVariable("AWS_ACCESS_KEY_ID", b.accessKeyID).
		WithSecretVariable("AWS_SECRET_ACCESS_KEY", b.secretAccessKey).
		WithEnvVariable("AWS_DEFAULT_REGION", "auto").
		WithDirectory("/artifacts", artifacts).
		WithWorkdir("/artifacts").
		WithExec([]string{
			"aws", "s3", "sync", ".",
			"s3://" + path.Join(name, prefix),
			"--endpoint-url", endpoint,
		}).
		Sync(ctx)
	if err != nil {
		return fmt.Errorf("uploading to %s: %w", prefix, err)
	}
	return nil
}

// Release builds versioned binaries and uploads them under the version and
// under "latest".
func (l *Lmgate) Release(
	ctx context.Context,
	// Version string (e.g., "v1.0.0")
	version string,
	// Git commit SHA
	commit string,
	// Bucket endpoint URL
	endpoint *dagger.Secret,
	// Bucket name
	name *dagger.Secret,
	// Bucket access key ID
	accessKeyID *dagger.Secret,
	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	b := &bucket{endpoint: endpoint, name: name, accessKeyID: accessKeyID, secretAccessKey: secretAccessKey}
	artifacts := l.BuildRelease(ctx, version, commit)
	for _, prefix := range []string{version, "latest"} {
		if err := b.sync(ctx, artifacts, prefix); err != nil {
			return artifacts, err
		}
	}
	return artifacts, nil
}

// Nightly builds binaries stamped "nightly" and uploads them under "nightly".
func (l *Lmgate) Nightly(
	ctx context.Context,
	// Git commit SHA
	commit string,
	// Bucket endpoint URL
	endpoint *dagger.Secret,
	// Bucket name
	name *dagger.Secret,
	// Bucket access key ID
	accessKeyID *dagger.Secret,
	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	b := &bucket{endpoint: endpoint, name: name, accessKeyID: accessKeyID, secretAccessKey: secretAccessKey}
	artifacts := l.BuildRelease(ctx, "nightly", commit)
	return artifacts, b.sync(ctx, artifacts, "nightly")
}
