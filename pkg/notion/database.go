package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll drains a database query, following cursors until Notion reports
// no further pages. The filter, sorts, and page size of req apply to every
// request; req may be nil for an unfiltered scan.
func QueryAll(ctx context.Context, c Client, dbID string, req *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	page := &notionapi.DatabaseQueryRequest{}
	if req != nil {
		page.Filter = req.Filter
		page.Sorts = req.Sorts
		page.PageSize = req.PageSize
	}

	var all []notionapi.Page
	for {
		resp, err := c.QueryDatabase(ctx, dbID, page)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			return all, nil
		}
		page.StartCursor = resp.NextCursor
	}
}

// QueryByTitle returns the pages whose title property equals title. The
// review queue uses it to find the page for a document before choosing
// between update and create.
func QueryByTitle(ctx context.Context, c Client, dbID, property, title string) ([]notionapi.Page, error) {
	req := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: property,
			RichText: &notionapi.TextFilterCondition{
				Equals: title,
			},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, req)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query by title")
	}
	return pages, nil
}
