package peloton

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"rideBoardAPI/internal/workout"
)

const workoutPageSize = 100

type workoutPage struct {
	Data      []workout.Workout `json:"data"`
	Page      int               `json:"page"`
	PageCount int               `json:"page_count"`
	ShowNext  bool              `json:"show_next"`
}

// GetWorkouts lists a user's workouts, walking every page until the server
// reports no more. A private or deleted profile yields an empty list, not an
// error.
func (c *Client) GetWorkouts(ctx context.Context, userID string, from, to *time.Time) ([]workout.Workout, error) {
	var all []workout.Workout

	for page := 0; ; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(workoutPageSize))
		q.Set("page", strconv.Itoa(page))
		q.Set("joins", "ride")
		if from != nil {
			q.Set("from", strconv.FormatInt(from.Unix(), 10))
		}
		if to != nil {
			q.Set("to", strconv.FormatInt(to.Unix(), 10))
		}

		var pg workoutPage
		err := c.getJSON(ctx, "user_workouts", fmt.Sprintf("/api/user/%s/workouts", userID), q, &pg)
		if errors.Is(err, ErrForbidden) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		all = append(all, pg.Data...)
		if !pg.ShowNext {
			break
		}
	}

	return all, nil
}

// GetWorkout fetches a single workout, including its achievement flags.
func (c *Client) GetWorkout(ctx context.Context, workoutID string) (*workout.Workout, error) {
	var w workout.Workout
	if err := c.getJSON(ctx, "workout", "/api/workout/"+workoutID, nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWorkoutPerformanceData fetches the per-workout metrics summary.
func (c *Client) GetWorkoutPerformanceData(ctx context.Context, workoutID string) (*workout.PerformanceDetail, error) {
	var d workout.PerformanceDetail
	if err := c.getJSON(ctx, "performance_graph", "/api/workout/"+workoutID+"/performance_graph", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
