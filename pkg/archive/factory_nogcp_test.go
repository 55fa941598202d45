//go:build !gcp

package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStoreFromEnv_GCSDisabled(t *testing.T) {
	t.Setenv("ARCHIVE_STORAGE_TYPE", "gcs")

	_, err := NewStoreFromEnv(context.Background())
	require.ErrorContains(t, err, "-tags gcp")
}
