package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/event"
)

// transcript renders bus envelopes as a human readable debate log.
type transcript struct {
	out   io.Writer
	names map[string]string
	raw   bool

	phase     *color.Color
	speaker   *color.Color
	moderator *color.Color
	coalition *color.Color
	faint     *color.Color
	heading   *color.Color
}

func newTranscript(out io.Writer, participants []core.Participant, raw bool) *transcript {
	names := make(map[string]string, len(participants)+1)
	names[core.ModeratorID] = "Moderator"
	for _, p := range participants {
		names[p.ID] = p.Name
	}
	return &transcript{
		out:       out,
		names:     names,
		raw:       raw,
		phase:     color.New(color.FgYellow, color.Bold),
		speaker:   color.New(color.FgCyan, color.Bold),
		moderator: color.New(color.FgMagenta, color.Bold),
		coalition: color.New(color.FgGreen),
		faint:     color.New(color.Faint),
		heading:   color.New(color.Bold, color.Underline),
	}
}

func (t *transcript) name(id string) string {
	if n, ok := t.names[id]; ok && n != "" {
		return n
	}
	return id
}

// Print writes one envelope. Raw mode emits the event JSON as one line.
func (t *transcript) Print(env event.Envelope) error {
	if t.raw {
		_, err := fmt.Fprintf(t.out, "%s\n", env.Data)
		return err
	}

	ev, payload, err := env.Decode()
	if err != nil {
		return err
	}
	switch ev.Type {
	case core.EventStatementAdded:
		var p core.StatementAddedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		st := p.Statement
		label := t.speaker
		if st.ParticipantID == core.ModeratorID {
			label = t.moderator
		}
		label.Fprintf(t.out, "%s", t.name(st.ParticipantID))
		fmt.Fprintf(t.out, ": %s\n", st.Content)
		if len(st.Citations) > 0 {
			t.faint.Fprintf(t.out, "  sources: %s\n", strings.Join(st.Citations, ", "))
		}
	case core.EventPhaseChanged:
		var p core.PhaseChangedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		t.phase.Fprintf(t.out, "\n== %s ==\n", phaseTitle(p.To))
	case core.EventCoalitionFormed:
		var p core.CoalitionFormedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		members := make([]string, 0, len(p.Coalition.Members))
		for _, m := range p.Coalition.Members {
			members = append(members, t.name(m))
		}
		t.coalition.Fprintf(t.out, "  + coalition %s (consensus %d%%)\n", strings.Join(members, " & "), p.Consensus)
	case core.EventQualityUpdated:
		var p core.QualityUpdatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		m := p.Metrics
		t.faint.Fprintf(t.out, "  quality: evidence %.2f, diversity %.2f, engagement %.2f, constructiveness %.2f\n",
			m.Evidence, m.Diversity, m.Engagement, m.Constructiveness)
	}
	return nil
}

// Outcome prints the synthesized result.
func (t *transcript) Outcome(o core.Outcome) {
	if t.raw {
		data, _ := json.Marshal(o)
		fmt.Fprintf(t.out, "%s\n", data)
		return
	}
	t.heading.Fprintln(t.out, "\nOutcome")
	verdict := "not reached"
	if o.ThresholdMet {
		verdict = "reached"
	}
	fmt.Fprintf(t.out, "Consensus %d%% (%s) after %d turns\n", o.Consensus, verdict, o.TurnCount)
	if c := o.StrongestCoalition; c != nil {
		members := make([]string, 0, len(c.Members))
		for _, m := range c.Members {
			members = append(members, t.name(m))
		}
		t.coalition.Fprintf(t.out, "Strongest coalition: %s\n", strings.Join(members, " & "))
		if c.Position != "" {
			fmt.Fprintf(t.out, "  %s\n", c.Position)
		}
	}
	ids := make([]string, 0, len(o.Positions))
	for id := range o.Positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		t.speaker.Fprintf(t.out, "%s", t.name(id))
		fmt.Fprintf(t.out, ": %s\n", o.Positions[id])
	}
}

func phaseTitle(p core.Phase) string {
	return strings.ToUpper(strings.ReplaceAll(string(p), "_", " "))
}
