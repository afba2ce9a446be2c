// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcs uploads exported conversation transcripts to a Google Cloud
// Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Uploader is what the export package needs from a bucket.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, objectPath string) error
	Close() error
}

type Client struct {
	storageClient *storage.Client
	BucketName    string
	// Prefix is prepended to every object path ("transcripts/").
	Prefix string
}

// NewClient opens a storage client. An empty credentialsPath uses
// application default credentials.
func NewClient(ctx context.Context, bucketName, credentialsPath string) (*Client, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	var opts []option.ClientOption
	if credentialsPath != "" {
		info, err := os.Stat(credentialsPath)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s. Please ensure you have the correct key and it is accessible", credentialsPath)
		}
		if err == nil && info.IsDir() {
			return nil, fmt.Errorf("service account key path %s is a directory", credentialsPath)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Client{
		storageClient: storageClient,
		BucketName:    bucketName,
	}, nil
}

// ObjectPath joins the client prefix and name with forward slashes.
func (c *Client) ObjectPath(name string) string {
	return strings.TrimPrefix(path.Join(c.Prefix, filepath.ToSlash(name)), "/")
}

func (c *Client) UploadFile(ctx context.Context, localPath, objectPath string) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open the local file: %s: %w", localPath, err)
	}
	defer localFile.Close()

	return c.Upload(ctx, localFile, objectPath, contentTypeFor(localPath))
}

// Upload copies r into objectPath.
func (c *Client) Upload(ctx context.Context, r io.Reader, objectPath, contentType string) error {
	if c.storageClient == nil {
		return fmt.Errorf("gcs client is not initialised")
	}
	objectPath = c.ObjectPath(objectPath)

	obj := c.storageClient.Bucket(c.BucketName).Object(objectPath)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to copy to GCS object %s: %w", objectPath, err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", objectPath, err)
	}
	slog.Info("uploaded transcript", "bucket", c.BucketName, "object", objectPath)
	return nil
}

// UploadDir uploads every regular file directly inside localDir.
func (c *Client) UploadDir(ctx context.Context, localDir, prefix string) error {
	return filepath.Walk(localDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return c.UploadFile(ctx, p, path.Join(prefix, info.Name()))
		}
		return nil
	})
}

func (c *Client) Close() error {
	if c.storageClient == nil {
		return nil
	}
	return c.storageClient.Close()
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".json":
		return "application/json"
	case ".html":
		return "text/html; charset=utf-8"
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
