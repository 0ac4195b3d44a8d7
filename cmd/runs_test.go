package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/talentlens/reportflow/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:           "abc12345-6789-0000-0000-000000000000",
			Document:     "reports/acme-2024.pdf",
			Mode:         model.ModeSequential,
			Status:       model.RunStatusCompleted,
			QualityScore: 82,
			CreatedAt:    now,
			UpdatedAt:    now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Document:  "ftp://reports.example.com/beta-2024.pdf",
			Mode:      model.ModeParallel,
			Status:    model.RunStatusRunning,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "DOCUMENT")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "reports/acme-2024.pdf")
	assert.Contains(t, output, "completed")
	assert.Contains(t, output, "82")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2025-06-15 10:30")
}

func TestFormatRunsList_PartialAndTruncation(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:             "abc12345-6789-0000-0000-000000000000",
			Document:       "ftp://reports.example.com/very/long/path/annual-report-2024-final-v2.pdf",
			Mode:           model.ModeSequential,
			Status:         model.RunStatusCompleted,
			QualityScore:   61,
			PartialSuccess: true,
			CreatedAt:      now,
			UpdatedAt:      now.Add(90 * time.Second),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "61 (partial)")
	assert.Contains(t, output, "...")
	assert.NotContains(t, output, "final-v2.pdf")
}

func TestComputeRunStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	runs := []model.Run{
		{
			ID:           "1",
			Status:       model.RunStatusCompleted,
			QualityScore: 80,
			CreatedAt:    now,
			UpdatedAt:    now.Add(2 * time.Minute),
		},
		{
			ID:             "2",
			Status:         model.RunStatusCompleted,
			QualityScore:   60,
			PartialSuccess: true,
			CreatedAt:      now,
			UpdatedAt:      now.Add(4 * time.Minute),
		},
		{
			ID:     "3",
			Status: model.RunStatusFailed,
			Error:  &model.RunError{Message: "rate limited", Category: model.ErrorCategoryTransient},
		},
		{
			ID:     "4",
			Status: model.RunStatusFailed,
			Error:  &model.RunError{Message: "schema rejected", Category: model.ErrorCategoryPermanent},
		},
		{
			ID:     "5",
			Status: model.RunStatusFailed,
		},
		{
			ID:     "6",
			Status: model.RunStatusQueued,
		},
	}

	s := computeRunStats(runs)

	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 1, s.Partial)
	assert.Equal(t, 3, s.Failed)
	assert.Equal(t, 1, s.Transient)
	assert.Equal(t, 1, s.Permanent)
	assert.Equal(t, 2, s.Other) // one unclassified failure, one queued
	assert.InDelta(t, 70.0, s.AvgScore, 0.01)
	assert.InDelta(t, 180.0, s.AvgDurSecs, 0.01)
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{
		Total:      4,
		Completed:  2,
		Partial:    1,
		Failed:     1,
		Transient:  1,
		AvgScore:   71.5,
		AvgDurSecs: 42.0,
	})

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "Avg score:")
	assert.Contains(t, output, "71.5")
	assert.Contains(t, output, "42.0s")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
