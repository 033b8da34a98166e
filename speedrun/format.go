package speedrun

import (
	"fmt"
	"strings"
	"time"
)

const dateFormat = "Jan 2, 2006"

// Twitch truncates beyond this; multi-item output is chunked to fit.
const maxMessageLength = 500

// FormatSeconds renders a run time for chat. Apart from the negative case the
// format is "0s", "59s", "1m 05s", "1h 01m 01s": leading units are omitted
// and trailing units are zero-padded once a larger unit appears. Negative
// times never happen upstream, so one slipping through gets a Kappa.
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		return "Kappa"
	}
	var b strings.Builder
	if seconds > 3600 {
		fmt.Fprintf(&b, "%dh ", seconds/3600)
		seconds %= 3600
	}
	if b.Len() > 0 {
		fmt.Fprintf(&b, "%02dm ", seconds/60)
		seconds %= 60
	} else if seconds > 60 {
		fmt.Fprintf(&b, "%dm ", seconds/60)
		seconds %= 60
	}
	if b.Len() > 0 {
		fmt.Fprintf(&b, "%02ds", seconds)
	} else {
		fmt.Fprintf(&b, "%ds", seconds)
	}
	return b.String()
}

// FormatOrdinal renders 1 as "1st", 2 as "2nd", 11 as "11th" and so on.
func FormatOrdinal(number int) string {
	suffix := "th"
	if number%100 < 11 || number%100 > 13 {
		switch number % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", number, suffix)
}

// ParticipantName renders one run participant. Guests carry their own display
// name; registered players resolve through the player table.
func (s *Store) ParticipantName(p Participant, includeTwitchURL bool) string {
	if p.IsGuest() {
		return p.Guest
	}
	player, ok := s.PlayerByID(p.PlayerID)
	if !ok {
		return p.PlayerID
	}
	if includeTwitchURL && player.TwitchURL != "" {
		return player.Name + " " + player.TwitchURL
	}
	return player.Name
}

// RunPlayers renders a run's participants. The Twitch URL is only appended
// for solo runs; co-op listings stay short.
func (s *Store) RunPlayers(runID string, includeTwitchURL bool) string {
	run, ok := s.RunByID(runID)
	if !ok {
		return ""
	}
	if len(run.Participants) == 1 {
		return s.ParticipantName(run.Participants[0], includeTwitchURL)
	}
	names := make([]string, 0, len(run.Participants))
	for _, p := range run.Participants {
		names = append(names, s.ParticipantName(p, false))
	}
	return strings.Join(names, " & ")
}

// BoardTitle renders "Game - Level - Category", omitting the level segment
// for full-game boards. Unresolvable ids fall back to themselves.
func (s *Store) BoardTitle(id BoardID) string {
	var b strings.Builder
	if game, ok := s.GameByID(id.GameID); ok {
		b.WriteString(game.InternationalName)
	} else {
		b.WriteString(id.GameID)
	}
	if id.LevelID != "" {
		b.WriteString(" - ")
		if level, ok := s.LevelByID(id.LevelID); ok {
			b.WriteString(level.Name)
		} else {
			b.WriteString(id.LevelID)
		}
	}
	b.WriteString(" - ")
	if category, ok := s.CategoryByID(id.CategoryID); ok {
		b.WriteString(category.Name)
	} else {
		b.WriteString(id.CategoryID)
	}
	return b.String()
}

func runDateClause(run *Run) string {
	if run.Date != nil {
		return "on " + run.Date.Format(dateFormat) + " "
	}
	if run.Submitted != nil {
		return "submitted on " + run.Submitted.Format(dateFormat) + " "
	}
	return ""
}

func runSeconds(run *Run) int {
	return int(run.Time / time.Second)
}

// WorldRecordMessages renders the full world record announcement. Up to
// three-way ties get one line per record holder; larger ties get a chunked
// name listing.
func (s *Store) WorldRecordMessages(id BoardID, runIDs []string) []string {
	title := s.BoardTitle(id)
	if len(runIDs) == 0 {
		return []string{fmt.Sprintf(
			"No record has been set for '%s' on speedrun.com", title)}
	}
	first, ok := s.RunByID(runIDs[0])
	if !ok {
		return nil
	}
	t := FormatSeconds(runSeconds(first))
	if len(runIDs) == 1 {
		return []string{fmt.Sprintf(
			"The world record for '%s' by %s with a time of %s %s- %s",
			title, s.RunPlayers(runIDs[0], true), t,
			runDateClause(first), first.Weblink)}
	}
	messages := []string{fmt.Sprintf(
		"The world record for '%s' has a %d-way tie with a time of %s",
		title, len(runIDs), t)}
	if len(runIDs) < 4 {
		for _, runID := range runIDs {
			run, ok := s.RunByID(runID)
			if !ok {
				continue
			}
			messages = append(messages, fmt.Sprintf("By %s %s- %s",
				s.RunPlayers(runID, false), runDateClause(run), run.Weblink))
		}
		return messages
	}
	names := make([]string, 0, len(runIDs))
	for _, runID := range runIDs {
		names = append(names, s.RunPlayers(runID, false))
	}
	return append(messages, MessagesFromItems(names, "By: ")...)
}

// WorldRecordMessagesLite renders the single-line world record form.
func (s *Store) WorldRecordMessagesLite(id BoardID, runIDs []string) []string {
	title := s.BoardTitle(id)
	if len(runIDs) == 0 {
		return []string{fmt.Sprintf(
			"No record has been set for '%s' on speedrun.com", title)}
	}
	first, ok := s.RunByID(runIDs[0])
	if !ok {
		return nil
	}
	names := make([]string, 0, len(runIDs))
	for _, runID := range runIDs {
		names = append(names, s.RunPlayers(runID, false))
	}
	msg := fmt.Sprintf("%s WR is %s by %s",
		title, FormatSeconds(runSeconds(first)), strings.Join(names, ", "))
	if len(runIDs) > 1 {
		msg += fmt.Sprintf(" (%d-way tie)", len(runIDs))
	}
	return []string{msg}
}

// PersonalBestMessages renders the full personal best announcement for a
// channel. An empty run id means the player has no run on the board.
func (s *Store) PersonalBestMessages(id BoardID, runID, channel string) []string {
	title := s.BoardTitle(id)
	run, ok := s.RunByID(runID)
	if runID == "" || !ok {
		return []string{fmt.Sprintf(
			"%s has no personal best in '%s'", channel, title)}
	}
	place := 0
	if board, ok := s.Board(id); ok {
		place = board.Place[runID]
	}
	return []string{fmt.Sprintf(
		"The personal best in '%s' by %s with a time of %s in %s place %s- %s",
		title, s.RunPlayers(runID, false), FormatSeconds(runSeconds(run)),
		FormatOrdinal(place), runDateClause(run), run.Weblink)}
}

// PersonalBestMessagesLite renders the single-line personal best form. Names
// only appear for co-op runs; the channel context implies the runner.
func (s *Store) PersonalBestMessagesLite(id BoardID, runID, channel string) []string {
	title := s.BoardTitle(id)
	run, ok := s.RunByID(runID)
	if runID == "" || !ok {
		return []string{fmt.Sprintf(
			"%s has no personal best in '%s'", channel, title)}
	}
	place := 0
	if board, ok := s.Board(id); ok {
		place = board.Place[runID]
	}
	names := ""
	if len(run.Participants) > 1 {
		names = " by " + s.RunPlayers(runID, false)
	}
	return []string{fmt.Sprintf("%s PB is %s in %s place%s",
		title, FormatSeconds(runSeconds(run)), FormatOrdinal(place), names)}
}

// MessagesFromItems joins items with ", " into as few chat messages as fit,
// prefixing each message with prepend.
func MessagesFromItems(items []string, prepend string) []string {
	var messages []string
	current := prepend
	first := true
	for _, item := range items {
		appended := item
		if !first {
			appended = ", " + item
		}
		if !first && len(current)+len(appended) > maxMessageLength {
			messages = append(messages, current)
			current = prepend + item
			continue
		}
		current += appended
		first = false
	}
	if !first || prepend != "" {
		messages = append(messages, current)
	}
	return messages
}
