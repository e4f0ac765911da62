package services

import (
	"fmt"
	"sort"
	"strings"

	"rideBoardAPI/internal/discord"
	"rideBoardAPI/internal/leaderboard"
	"rideBoardAPI/utils"
)

// BuildMessages turns a snapshot into the outgoing chat payloads: one message
// per ride board, one endurance board, and a PB callout when anyone set one.
// Pure function; dispatch is the caller's problem.
func BuildMessages(snap *leaderboard.Snapshot, size int) []*discord.Message {
	if size <= 0 {
		size = 10
	}

	var messages []*discord.Message
	for _, ride := range sortedRides(snap) {
		messages = append(messages, rideMessage(ride, size))
	}

	if endurance := enduranceMessage(snap, size); endurance != nil {
		messages = append(messages, endurance)
	}
	if pbs := pbMessage(snap); pbs != nil {
		messages = append(messages, pbs)
	}
	return messages
}

// sortedRides orders boards by air time so the post order matches the class
// schedule.
func sortedRides(snap *leaderboard.Snapshot) []*leaderboard.RideAggregate {
	rides := make([]*leaderboard.RideAggregate, 0, len(snap.Rides))
	for _, r := range snap.Rides {
		rides = append(rides, r)
	}
	sort.Slice(rides, func(i, j int) bool {
		if rides[i].ScheduledStartTime != rides[j].ScheduledStartTime {
			return rides[i].ScheduledStartTime < rides[j].ScheduledStartTime
		}
		return rides[i].ID < rides[j].ID
	})
	return rides
}

func rideMessage(ride *leaderboard.RideAggregate, size int) *discord.Message {
	embed := discord.Embed{
		Title:       ride.Title,
		Description: ride.Description,
	}
	if ride.ImageURL != "" {
		embed.Thumbnail = &discord.Thumbnail{URL: ride.ImageURL}
	}

	top := ride.Workouts
	if len(top) > size {
		top = top[:size]
	}
	for i, entry := range top {
		name := fmt.Sprintf("%s — %s", utils.Ordinal(i+1), entry.Username)
		if entry.IsNewPB {
			name += " ⭐"
		}
		embed.Fields = append(embed.Fields, discord.Field{
			Name: name,
			Value: fmt.Sprintf("%s • %.0f rpm • %.1f km",
				utils.FormatKilojoules(entry.TotalWork), entry.AvgCadence, entry.Distance),
		})
	}

	return &discord.Message{
		Embeds:          []discord.Embed{embed},
		AllowedMentions: &discord.AllowedMentions{Parse: []string{}},
	}
}

func enduranceMessage(snap *leaderboard.Snapshot, size int) *discord.Message {
	totals := sortedTotals(snap)
	if len(totals) == 0 {
		return nil
	}

	var totalOutput float64
	rideCounts := make([]int, 0, len(totals))
	for _, t := range totals {
		totalOutput += t.Output
		rideCounts = append(rideCounts, t.Rides)
	}
	avgOutput := totalOutput / float64(len(totals))

	embed := discord.Embed{
		Title: fmt.Sprintf("Endurance leaderboard — %s", snap.Date),
		Description: fmt.Sprintf("Combined output: %s • Average: %s • Median: %.1f rides",
			utils.FormatEnergy(totalOutput), utils.FormatEnergy(avgOutput), utils.MedianInt(rideCounts)),
	}

	top := totals
	if len(top) > size {
		top = top[:size]
	}
	for i, t := range top {
		embed.Fields = append(embed.Fields, discord.Field{
			Name: fmt.Sprintf("%s — %s", utils.Ordinal(i+1), t.Username),
			Value: fmt.Sprintf("%s • %s • %d min",
				utils.FormatKilojoules(t.Output), utils.FormatRideCount(t.Rides), t.DurationMinutes),
		})
	}

	return &discord.Message{
		Embeds:          []discord.Embed{embed},
		AllowedMentions: &discord.AllowedMentions{Parse: []string{}},
	}
}

// sortedTotals ranks riders by output descending; the stable sort over a
// name-ordered base keeps ties deterministic.
func sortedTotals(snap *leaderboard.Snapshot) []*leaderboard.UserTotal {
	totals := make([]*leaderboard.UserTotal, 0, len(snap.Totals))
	for _, t := range snap.Totals {
		totals = append(totals, t)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Username < totals[j].Username })
	sort.SliceStable(totals, func(i, j int) bool { return totals[i].Output > totals[j].Output })
	return totals
}

func pbMessage(snap *leaderboard.Snapshot) *discord.Message {
	if len(snap.PlayersWhoPBd) == 0 {
		return nil
	}

	names := make([]string, 0, len(snap.PlayersWhoPBd))
	for name := range snap.PlayersWhoPBd {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		for _, pb := range snap.PlayersWhoPBd[name] {
			lines = append(lines, fmt.Sprintf("**%s** — %s (%d min)",
				name, utils.FormatKilojoules(pb.TotalWork), pb.DurationMinutes))
		}
	}

	return &discord.Message{
		Embeds: []discord.Embed{{
			Title:       "New personal bests! 🎉",
			Description: strings.Join(lines, "\n"),
		}},
		AllowedMentions: &discord.AllowedMentions{Parse: []string{}},
	}
}
