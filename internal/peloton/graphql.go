package peloton

import (
	"context"
)

// TagUser is a community member surfaced by the tag membership query.
type TagUser struct {
	ID        string
	Username  string
	AvatarURL string
}

const tagDetailQuery = `
query TagDetail($tagName: String!, $after: Cursor) {
  tag(tagName: $tagName) {
    users(after: $after) {
      edges {
        node {
          id
          username
          assets {
            image {
              location
            }
          }
        }
      }
      pageInfo {
        hasNextPage
        endCursor
      }
    }
  }
}`

type tagDetailResponse struct {
	Data struct {
		Tag struct {
			Users struct {
				Edges []struct {
					Node struct {
						ID       string `json:"id"`
						Username string `json:"username"`
						Assets   struct {
							Image struct {
								Location string `json:"location"`
							} `json:"image"`
						} `json:"assets"`
					} `json:"node"`
				} `json:"edges"`
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
			} `json:"users"`
		} `json:"tag"`
	} `json:"data"`
}

// GetUsersInTag walks the cursor-paginated tag membership query until
// exhausted and returns every member.
func (c *Client) GetUsersInTag(ctx context.Context, tagName string) ([]TagUser, error) {
	var users []TagUser
	var after *string

	for {
		payload := map[string]any{
			"query": tagDetailQuery,
			"variables": map[string]any{
				"tagName": tagName,
				"after":   after,
			},
		}

		var resp tagDetailResponse
		if err := c.postJSON(ctx, "tag_detail", c.graphqlURL, payload, &resp); err != nil {
			return nil, err
		}

		for _, edge := range resp.Data.Tag.Users.Edges {
			users = append(users, TagUser{
				ID:        edge.Node.ID,
				Username:  edge.Node.Username,
				AvatarURL: edge.Node.Assets.Image.Location,
			})
		}

		info := resp.Data.Tag.Users.PageInfo
		if !info.HasNextPage {
			break
		}
		cursor := info.EndCursor
		after = &cursor
	}

	return users, nil
}
