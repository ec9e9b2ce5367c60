package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/loomlabs/loom/internal/model"
)

// describeRecord renders a record payload as compact prose for the prompt.
// Unknown kinds fall back to the raw key/value pairs.
func describeRecord(rec *model.RawRecord) (string, error) {
	decoded, err := model.DecodePayload(rec.Kind, rec.Payload)
	if err != nil {
		return "", eris.Wrapf(err, "extract: describe record %s", rec.ID)
	}
	if decoded == nil {
		return fmt.Sprintf("A %s record with no payload.", rec.Kind), nil
	}

	switch p := decoded.(type) {
	case *model.MessagePayload:
		return fmt.Sprintf("An email from %s to %s with subject %q. Snippet: %s",
			p.From, p.To, p.Subject, p.Snippet), nil
	case *model.EventPayload:
		desc := fmt.Sprintf("A calendar event titled %q", p.Title)
		if p.Location != "" {
			desc += fmt.Sprintf(" at %s", p.Location)
		}
		if len(p.Attendees) > 0 {
			desc += fmt.Sprintf(" with attendees %s", strings.Join(p.Attendees, ", "))
		}
		if !p.Start.IsZero() {
			desc += fmt.Sprintf(", starting %s", p.Start.Format("2006-01-02 15:04"))
		}
		return desc + ".", nil
	case *model.PlayPayload:
		desc := fmt.Sprintf("Listened to the track %q by %s", p.Track, p.Artist)
		if p.Album != "" {
			desc += fmt.Sprintf(" from the album %q", p.Album)
		}
		return desc + ".", nil
	case *model.SavedPayload:
		desc := fmt.Sprintf("Saved the item %q", p.Title)
		if p.Creator != "" {
			desc += fmt.Sprintf(" by %s", p.Creator)
		}
		if p.Category != "" {
			desc += fmt.Sprintf(" in category %s", p.Category)
		}
		return desc + ".", nil
	case *model.FilePayload:
		return fmt.Sprintf("A file named %q at %s (type %s), last modified %s.",
			p.Name, p.Path, p.MimeType, p.ModifiedAt.Format("2006-01-02")), nil
	case *model.TransactionPayload:
		return fmt.Sprintf("A transaction of %.2f %s at %q in category %s.",
			p.Amount, p.Currency, p.Payee, p.Category), nil
	case map[string]any:
		return describeGeneric(rec.Kind, p), nil
	default:
		return describeRaw(rec)
	}
}

func describeGeneric(kind string, fields map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A %s record with fields:", kind)
	for _, k := range sortedKeys(fields) {
		fmt.Fprintf(&b, " %s=%v;", k, fields[k])
	}
	return b.String()
}

func describeRaw(rec *model.RawRecord) (string, error) {
	var fields map[string]any
	if err := json.Unmarshal(rec.Payload, &fields); err != nil {
		return "", eris.Wrapf(err, "extract: decode payload for %s", rec.ID)
	}
	return describeGeneric(rec.Kind, fields), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
