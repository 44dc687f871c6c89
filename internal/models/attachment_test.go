package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAttachment_Orphaned(t *testing.T) {
	cutoff := time.Now()
	entityID := "entity-1"

	old := Attachment{}
	old.CreatedAt = cutoff.Add(-time.Hour)
	require.True(t, old.Orphaned(cutoff))

	claimed := Attachment{EntityID: &entityID}
	claimed.CreatedAt = cutoff.Add(-time.Hour)
	require.False(t, claimed.Orphaned(cutoff))

	fresh := Attachment{}
	fresh.CreatedAt = cutoff.Add(time.Hour)
	require.False(t, fresh.Orphaned(cutoff))
}
