package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/minio/minio-go/v7"
)

// BucketStats summarises the exports in a bucket.
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// ObjectInfo is one listed export.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// ListExports lists exported recordings under the exports prefix.
func ListExports(ctx context.Context, client *minio.Client, bucket, prefix string) ([]ObjectInfo, *BucketStats, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		return nil, nil, fmt.Errorf("bucket %s does not exist", bucket)
	}

	stats := &BucketStats{}
	var objects []ObjectInfo

	objectCh := client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    exportsPrefix + prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("list objects: %w", object.Err)
		}

		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
		})
	}
	return objects, stats, nil
}

// PurgeExports removes every export older than maxAge. It returns how many
// objects were deleted.
func PurgeExports(ctx context.Context, client *minio.Client, bucket string, maxAge time.Duration) (int, error) {
	objects, _, err := ListExports(ctx, client, bucket, "")
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	toDelete := make(chan minio.ObjectInfo, len(objects))
	n := 0
	for _, obj := range objects {
		if obj.LastModified.Before(cutoff) {
			toDelete <- minio.ObjectInfo{Key: obj.Key}
			n++
		}
	}
	close(toDelete)
	if n == 0 {
		return 0, nil
	}

	for rmErr := range client.RemoveObjects(ctx, bucket, toDelete, minio.RemoveObjectsOptions{}) {
		if rmErr.Err != nil {
			return 0, fmt.Errorf("remove %s: %w", rmErr.ObjectName, rmErr.Err)
		}
	}
	return n, nil
}

// PrintExports writes a bucket report for the minio command.
func PrintExports(w io.Writer, bucket string, objects []ObjectInfo, stats *BucketStats) {
	fmt.Fprintf(w, "bucket:        %s\n", bucket)
	fmt.Fprintf(w, "exports:       %d\n", stats.TotalObjects)
	fmt.Fprintf(w, "total size:    %s\n", FormatSize(stats.TotalSize))
	if !stats.LastModified.IsZero() {
		fmt.Fprintf(w, "last modified: %s\n", stats.LastModified.Format(time.RFC3339))
	}
	if len(objects) == 0 {
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Modified", "Size", "Export"})
	for _, obj := range objects {
		tw.AppendRow(table.Row{
			obj.LastModified.Format("2006-01-02 15:04:05"),
			FormatSize(obj.Size),
			strings.TrimPrefix(obj.Key, exportsPrefix),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	tw.Render()
}

// FormatSize renders a byte count for humans.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
