package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// TestQueryByTitle_Error verifies that QueryByTitle propagates errors
// from the underlying QueryAll / QueryDatabase call.
func TestQueryByTitle_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-err", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		if !ok {
			return false
		}
		return pf.Property == "Document" && pf.RichText != nil && pf.RichText.Equals == "reports/broken.pdf"
	})).Return(nil, assert.AnError).Once()

	pages, err := QueryByTitle(ctx, mc, "db-err", "Document", "reports/broken.pdf")
	assert.Error(t, err)
	assert.Nil(t, pages)
	assert.Contains(t, err.Error(), "notion: query by title")
	mc.AssertExpectations(t)
}

// TestQueryByTitle_Empty verifies QueryByTitle returns an empty slice when
// no page carries the requested title.
func TestQueryByTitle_Empty(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-empty", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		if !ok {
			return false
		}
		return pf.Property == "Document" && pf.RichText != nil && pf.RichText.Equals == "reports/unknown.pdf"
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{},
		HasMore: false,
	}, nil).Once()

	pages, err := QueryByTitle(ctx, mc, "db-empty", "Document", "reports/unknown.pdf")
	assert.NoError(t, err)
	assert.Empty(t, pages)
	mc.AssertExpectations(t)
}

// TestQueryByTitle_MultiplePages verifies QueryByTitle handles pagination
// correctly when there are multiple pages of results.
func TestQueryByTitle_MultiplePages(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	// First page of results.
	mc.On("QueryDatabase", ctx, "db-paginated", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		if !ok {
			return false
		}
		return pf.Property == "Document" &&
			pf.RichText != nil &&
			pf.RichText.Equals == "reports/dup.pdf" &&
			req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "rev-1"}, {ID: "rev-2"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("cursor-xyz"),
	}, nil).Once()

	// Second page of results.
	mc.On("QueryDatabase", ctx, "db-paginated", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("cursor-xyz")
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "rev-3"}},
		HasMore: false,
	}, nil).Once()

	pages, err := QueryByTitle(ctx, mc, "db-paginated", "Document", "reports/dup.pdf")
	assert.NoError(t, err)
	assert.Len(t, pages, 3)
	assert.Equal(t, notionapi.ObjectID("rev-1"), pages[0].ID)
	assert.Equal(t, notionapi.ObjectID("rev-2"), pages[1].ID)
	assert.Equal(t, notionapi.ObjectID("rev-3"), pages[2].ID)
	mc.AssertExpectations(t)
}
