package peloton

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Follower is one entry in a user's follower list.
type Follower struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// UserDetails is the public profile summary for a single user.
type UserDetails struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	ImageURL      string `json:"image_url"`
	TotalWorkouts int    `json:"total_workouts"`
}

type followerPage struct {
	Data     []Follower `json:"data"`
	ShowNext bool       `json:"show_next"`
}

// GetFollowers lists everyone following the given user. Follower-graph calls
// share the 100ms floor spacing.
func (c *Client) GetFollowers(ctx context.Context, userID string) ([]Follower, error) {
	var all []Follower

	for page := 0; ; page++ {
		if err := c.social.Wait(ctx); err != nil {
			return nil, err
		}

		q := url.Values{}
		q.Set("limit", strconv.Itoa(workoutPageSize))
		q.Set("page", strconv.Itoa(page))

		var pg followerPage
		if err := c.getJSON(ctx, "followers", fmt.Sprintf("/api/user/%s/followers", userID), q, &pg); err != nil {
			return nil, err
		}

		all = append(all, pg.Data...)
		if !pg.ShowNext {
			break
		}
	}

	return all, nil
}

// FollowUser issues a follow request from the authenticated account.
func (c *Client) FollowUser(ctx context.Context, userID string) error {
	if err := c.social.Wait(ctx); err != nil {
		return err
	}

	body := map[string]string{
		"user_id": userID,
		"action":  "follow",
	}
	return c.postJSON(ctx, "change_relationship", c.baseURL+"/api/user/change_relationship", body, nil)
}

// GetUserDetails fetches a user's public profile.
func (c *Client) GetUserDetails(ctx context.Context, userID string) (*UserDetails, error) {
	if err := c.social.Wait(ctx); err != nil {
		return nil, err
	}

	var d UserDetails
	if err := c.getJSON(ctx, "user_details", "/api/user/"+userID, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
