// Package review pushes flagged analysis runs onto a Notion review board.
// One page per document: a resubmitted document updates its existing page
// instead of piling up duplicates.
package review

import (
	"context"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentlens/reportflow/internal/config"
	"github.com/talentlens/reportflow/internal/model"
	"github.com/talentlens/reportflow/internal/resilience"
	"github.com/talentlens/reportflow/pkg/notion"
)

// titleProperty is the review database's title column. QueryByTitle matches
// against it to locate a document's existing page.
const titleProperty = "Document"

// Queue submits flagged runs to the Notion review database.
type Queue struct {
	client  notion.Client
	dbID    string
	breaker *resilience.CircuitBreaker
	log     *zap.Logger
}

// NewQueue builds a review queue from configuration. Returns nil when no
// token or database id is configured; a nil Queue ignores submissions.
func NewQueue(cfg config.NotionConfig) *Queue {
	if cfg.APIKey == "" || cfg.ReviewDBID == "" {
		return nil
	}

	log := zap.L().With(zap.String("component", "review"))
	cbCfg := resilience.DefaultCircuitBreakerConfig()
	cbCfg.OnStateChange = func(from, to resilience.CircuitState) {
		log.Warn("review circuit state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &Queue{
		client:  notion.NewClient(cfg.APIKey),
		dbID:    cfg.ReviewDBID,
		breaker: resilience.NewCircuitBreaker(cbCfg),
		log:     log,
	}
}

// Enabled reports whether submissions will reach Notion.
func (q *Queue) Enabled() bool { return q != nil }

// Submit upserts the review page for a run whose validation flagged it.
// Runs without a flag are ignored, as is every run when the queue is
// disabled. Calls are routed through a circuit breaker so a broken Notion
// integration cannot stall run processing.
func (q *Queue) Submit(ctx context.Context, run *model.Run) error {
	if q == nil {
		return nil
	}
	if run.Result == nil || !run.Result.FinancialMetrics.Validation.FlaggedForReview {
		return nil
	}
	return q.breaker.Execute(ctx, func(ctx context.Context) error {
		return q.upsert(ctx, run)
	})
}

func (q *Queue) upsert(ctx context.Context, run *model.Run) error {
	pages, err := notion.QueryByTitle(ctx, q.client, q.dbID, titleProperty, run.Document)
	if err != nil {
		return eris.Wrapf(err, "review: locate page for %s", run.Document)
	}

	props := reviewProperties(run)

	if len(pages) > 0 {
		pageID := string(pages[0].ID)
		if _, err := q.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
			return eris.Wrapf(err, "review: update page for %s", run.Document)
		}
		q.log.Info("review page updated",
			zap.String("document", run.Document),
			zap.Int("score", run.QualityScore),
		)
		return nil
	}

	_, err = q.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(q.dbID),
		},
		Properties: props,
	})
	if err != nil {
		return eris.Wrapf(err, "review: create page for %s", run.Document)
	}
	q.log.Info("review page created",
		zap.String("document", run.Document),
		zap.Int("score", run.QualityScore),
	)
	return nil
}

func reviewProperties(run *model.Run) notionapi.Properties {
	now := notionapi.Date(time.Now())

	props := notionapi.Properties{
		titleProperty: notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: run.Document}},
			},
		},
		"Status": notionapi.StatusProperty{
			Status: notionapi.Status{
				Name: "Needs Review",
			},
		},
		"Score": notionapi.NumberProperty{
			Number: float64(run.QualityScore),
		},
		"Partial": notionapi.CheckboxProperty{
			Checkbox: run.PartialSuccess,
		},
		"Analyzed": notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: &now,
			},
		},
	}

	if notes := strings.Join(run.Result.FinancialMetrics.Validation.Notes, "; "); notes != "" {
		props["Flags"] = notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: notes}},
			},
		}
	}
	return props
}
