package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mcoot/chaosroom/internal/api/response"
	"github.com/mcoot/chaosroom/internal/catalog"
	"github.com/mcoot/chaosroom/internal/services/leaderboard"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.AuthResponse:
		o.printAuth(v)
	case response.Player:
		o.printPlayer(v)
	case []response.Player:
		o.printRoster(v)
	case response.View:
		o.printView(v)
	case response.Resolution:
		o.printResolution(v)
	case response.Chaos:
		o.printChaos(v)
	case catalog.Mission:
		o.printMission(v)
	case []catalog.Mission:
		o.printMissions(v)
	case []leaderboard.Entry:
		o.printLeaderboard(v)
	case response.Audit:
		o.printAudit(v)
	case response.Health:
		fmt.Fprintf(o.w, "Status: %s (store %s)\n", v.Status, v.Store)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func formatSeconds(s int64) string {
	return (time.Duration(s) * time.Second).String()
}

func (o *Output) printAuth(a response.AuthResponse) {
	fmt.Fprintf(o.w, "Player: %s (%s)\n", a.Email, a.PlayerID)
	fmt.Fprintf(o.w, "Token: %s\n", a.SessionToken)
	fmt.Fprintf(o.w, "Expires: %s\n", a.ExpiresAt.Format(time.RFC3339))
}

func (o *Output) printPlayer(p response.Player) {
	fmt.Fprintf(o.w, "Player: %s (%s)\n", p.DisplayName, p.ID)
	fmt.Fprintf(o.w, "Role: %s\n", p.Role)
	fmt.Fprintf(o.w, "Score: %d  Tokens: %d\n", p.Score, p.Tokens)
	if p.ActiveMission != nil {
		fmt.Fprintf(o.w, "Active: %s (assignment %s)\n", p.ActiveMission.MissionID, p.ActiveMission.AssignmentID)
	}
	if p.LastPlayedCategory != "" {
		lock := "locked"
		if p.UnlockedSameCategory {
			lock = "unlocked"
		}
		fmt.Fprintf(o.w, "Last category: %s (%s)\n", p.LastPlayedCategory, lock)
	}
	fmt.Fprintf(o.w, "Completed: %d\n", len(p.CompletedGames))
}

func (o *Output) printRoster(players []response.Player) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tSCORE\tTOKENS\tACTIVE")
	for _, p := range players {
		active := "-"
		if p.ActiveMission != nil {
			active = p.ActiveMission.MissionID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", p.ID, p.DisplayName, p.Role, p.Score, p.Tokens, active)
	}
	_ = tw.Flush()
}

func (o *Output) printView(v response.View) {
	if v.Player != nil {
		fmt.Fprintf(o.w, "Player: %s  Score: %d  Tokens: %d\n", v.Player.DisplayName, v.Player.Score, v.Player.Tokens)
	}
	state := v.State
	if v.Pending != "" {
		state += " (pending " + v.Pending + ")"
	}
	fmt.Fprintf(o.w, "State: %s\n", state)
	if v.Mission != nil {
		fmt.Fprintf(o.w, "Mission: %s %s @ %s\n", v.Mission.ID, v.Mission.Title, v.Mission.Location)
		fmt.Fprintf(o.w, "Remaining: %s\n", formatSeconds(v.RemainingSeconds))
	}
	o.printChaos(v.Chaos)
	if v.Immune {
		fmt.Fprintln(o.w, "Immune to this rule")
	}
	if v.Error != nil {
		fmt.Fprintf(o.w, "Last error: %s (%s)\n", v.Error.Message, v.Error.Code)
	}
}

func (o *Output) printResolution(r response.Resolution) {
	fmt.Fprintf(o.w, "%s resolved as %s: score %+d, tokens %+d\n", r.MissionID, r.Outcome, r.ScoreDelta, r.TokensDelta)
	fmt.Fprintf(o.w, "Now: score %d, tokens %d\n", r.Player.Score, r.Player.Tokens)
}

func (o *Output) printChaos(c response.Chaos) {
	fmt.Fprintf(o.w, "Chaos #%d: %s (%s left)\n", c.Index, c.Rule, formatSeconds(c.RemainingSeconds))
}

func (o *Output) printMission(m catalog.Mission) {
	fmt.Fprintf(o.w, "%s: %s %s\n", m.ID, m.Title, m.Difficulty)
	fmt.Fprintf(o.w, "Location: %s\n", m.Location)
	fmt.Fprintln(o.w, m.Description)
	labels := make([]string, 0, len(m.Outcomes))
	for _, out := range m.Outcomes {
		if out.IsWager {
			labels = append(labels, out.Label+"(wager)")
			continue
		}
		labels = append(labels, fmt.Sprintf("%s(%+d)", out.Label, out.Score))
	}
	fmt.Fprintf(o.w, "Outcomes: %s\n", strings.Join(labels, " "))
}

func (o *Output) printMissions(missions []catalog.Mission) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tLOCATION")
	for _, m := range missions {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.Title, m.Location)
	}
	_ = tw.Flush()
}

func (o *Output) printLeaderboard(entries []leaderboard.Entry) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tNAME\tSCORE\tTOKENS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", e.Rank, e.Name, e.Score, e.Tokens)
	}
	_ = tw.Flush()
}

func (o *Output) printAudit(a response.Audit) {
	if len(a.Entries) == 0 {
		fmt.Fprintf(o.w, "No audit entries for %s\n", a.PlayerID)
		return
	}
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTOR\tACTION\tDETAIL\tREASON")
	for _, e := range a.Entries {
		detail := e.Detail
		if e.Field != "" {
			detail = fmt.Sprintf("%s %+d", e.Field, e.Delta)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.ActorID, e.Action, detail, e.Reason)
	}
	_ = tw.Flush()
}
