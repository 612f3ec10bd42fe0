package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/harunnryd/kiki/internal/action"
	kerrors "github.com/harunnryd/kiki/internal/errors"
)

func init() {
	action.RegisterBuiltin("getTime", func(options action.BuiltinOptions) (action.Action, error) {
		return &TimeAction{Now: options.Clock()}, nil
	})
}

// TimeAction returns the current time in a time zone or at a UTC offset.
type TimeAction struct {
	Now func() time.Time
}

func (a *TimeAction) Name() string { return "getTime" }

func (a *TimeAction) Aliases() []string { return []string{"time", "timezone", "getTimezone"} }

func (a *TimeAction) Description() string {
	return "Get the current time for an IANA time zone (e.g. Asia/Tokyo) or a UTC offset (e.g. +07:00)."
}

func (a *TimeAction) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"timezone": map[string]interface{}{
				"type":        "string",
				"description": "IANA time zone name, for example America/New_York",
			},
			"utc_offset": map[string]interface{}{
				"type":        "string",
				"description": "UTC offset like +07:00",
			},
		},
	}
}

func (a *TimeAction) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	_ = ctx

	var args struct {
		Timezone  string `json:"timezone"`
		UTCOffset string `json:"utc_offset"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, kerrors.InvalidInput(err.Error())
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	loc, label, err := resolveLocation(args.Timezone, args.UTCOffset)
	if err != nil {
		return nil, err
	}

	local := now().In(loc)
	return json.Marshal(map[string]string{
		"timezone":   label,
		"time":       local.Format(time.RFC3339),
		"readable":   local.Format("Monday, 02 January 2006 15:04"),
		"utc_offset": local.Format("-07:00"),
	})
}

func resolveLocation(timezone, utcOffset string) (*time.Location, string, error) {
	if tz := strings.TrimSpace(timezone); tz != "" {
		if seconds, err := parseUTCOffset(tz); err == nil {
			return time.FixedZone(tz, seconds), tz, nil
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, "", kerrors.InvalidInput(fmt.Sprintf("unknown timezone %q", tz))
		}
		return loc, loc.String(), nil
	}

	if offset := strings.TrimSpace(utcOffset); offset != "" {
		seconds, err := parseUTCOffset(offset)
		if err != nil {
			return nil, "", kerrors.InvalidInput(err.Error())
		}
		return time.FixedZone(offset, seconds), offset, nil
	}

	return time.UTC, "UTC", nil
}

// parseUTCOffset accepts ±HH:MM.
func parseUTCOffset(offset string) (int, error) {
	if len(offset) != 6 || (offset[0] != '+' && offset[0] != '-') || offset[3] != ':' {
		return 0, fmt.Errorf("invalid utc_offset format %q, want ±HH:MM", offset)
	}
	for _, i := range []int{1, 2, 4, 5} {
		if offset[i] < '0' || offset[i] > '9' {
			return 0, fmt.Errorf("invalid utc_offset format %q, want ±HH:MM", offset)
		}
	}

	hours := int(offset[1]-'0')*10 + int(offset[2]-'0')
	minutes := int(offset[4]-'0')*10 + int(offset[5]-'0')
	if hours > 23 || minutes > 59 {
		return 0, fmt.Errorf("invalid utc_offset value %q", offset)
	}

	total := hours*3600 + minutes*60
	if offset[0] == '-' {
		total = -total
	}
	return total, nil
}
