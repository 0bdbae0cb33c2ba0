package scenario

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `{
  "scenario_metadata": {
    "scenario_id": "SCN-0001",
    "scenario_type": "denial_resolution",
    "denial_code": "CO-16",
    "complexity": "simple"
  },
  "account": {
    "account_number": "ACC-100200",
    "facility": "Mercy General",
    "service_date": "2025-02-10"
  },
  "timeline": [
    {
      "timestamp": "2025-02-15T09:00:00",
      "frame_id": "frame_001",
      "event_type": "denial_received",
      "event": {
        "trigger": "remit_posted",
        "description": "CO-16 denial posted from payer remit",
        "actor": "system"
      },
      "account_state": {
        "claims": [
          {"record_id": "CLM-001", "status": "denied", "balance": 425}
        ],
        "transactions": [
          {"record_id": "TXN-001", "transaction_type": "charge", "amount": 425}
        ]
      },
      "state_summary": "Claim denied with CO-16, balance open."
    }
  ]
}`

func TestParseMinimalScenario(t *testing.T) {
	t.Parallel()

	s, err := Parse(minimalScenario)
	require.NoError(t, err)
	assert.Equal(t, "SCN-0001", s.Metadata.ScenarioID)
	assert.Equal(t, "CO-16", s.Metadata.DenialCode)
	assert.Equal(t, "ACC-100200", s.Account.AccountNumber)
	require.Len(t, s.Timeline, 1)
	assert.Equal(t, 0, s.Transitions())
	assert.Equal(t, minimalScenario, s.Raw)
}

func TestParseNormalizesNumbers(t *testing.T) {
	t.Parallel()

	s, err := Parse(minimalScenario)
	require.NoError(t, err)

	claim := s.Timeline[0].AccountState.Claim()
	assert.Equal(t, float64(425), claim["balance"])

	balance, ok := claim.Number("balance")
	require.True(t, ok)
	assert.Equal(t, 425.0, balance)
}

func TestParseFencedOutput(t *testing.T) {
	t.Parallel()

	fenced := "Sure, here is the scenario:\n\n```json\n" + minimalScenario + "\n```\n\nLet me know if anything is off."
	s, err := Parse(fenced)
	require.NoError(t, err)
	assert.Equal(t, "SCN-0001", s.Metadata.ScenarioID)
	assert.Equal(t, fenced, s.Raw)
}

func TestParseNoJSON(t *testing.T) {
	t.Parallel()

	_, err := Parse("I cannot generate that scenario.")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "no JSON object")
}

func TestParseSchemaViolation(t *testing.T) {
	t.Parallel()

	_, err := Parse(`{"scenario_metadata": {"scenario_id": "SCN-0002"}}`)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "scenario structure invalid")
}

func TestParseBadComplexity(t *testing.T) {
	t.Parallel()

	bad := `{
  "scenario_metadata": {
    "scenario_id": "SCN-0003",
    "scenario_type": "denial_resolution",
    "denial_code": "CO-16",
    "complexity": "extreme"
  },
  "account": {"account_number": "A", "facility": "F", "service_date": "2025-02-10"},
  "timeline": [
    {
      "timestamp": "2025-02-15T09:00:00",
      "frame_id": "frame_001",
      "event_type": "denial_received",
      "event": {"trigger": "remit_posted", "description": "d", "actor": "system"},
      "account_state": {},
      "state_summary": "s"
    }
  ]
}`
	_, err := Parse(bad)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "complexity")
}

func TestParseErrorMessage(t *testing.T) {
	t.Parallel()

	err := error(&ParseError{Reason: "no JSON object found in response"})
	assert.Equal(t, "parse scenario: no JSON object found in response", err.Error())
	assert.True(t, errors.As(err, new(*ParseError)))
}

func TestExtractJSONBalancedBraces(t *testing.T) {
	t.Parallel()

	raw := `The account state is {"status": "denied", "note": "braces {inside} a string"} as requested.`
	payload, ok := ExtractJSON([]byte(raw))
	require.True(t, ok)
	assert.JSONEq(t, `{"status": "denied", "note": "braces {inside} a string"}`, string(payload))
}

func TestExtractJSONEscapedQuotes(t *testing.T) {
	t.Parallel()

	raw := `{"note": "payer said \"resubmit\" the claim"}`
	payload, ok := ExtractJSON([]byte(raw))
	require.True(t, ok)
	assert.JSONEq(t, raw, string(payload))
}

func TestExtractJSONUnterminated(t *testing.T) {
	t.Parallel()

	_, ok := ExtractJSON([]byte(`{"status": "denied"`))
	assert.False(t, ok)
}

func TestExtractJSONBareFence(t *testing.T) {
	t.Parallel()

	raw := "```\n{\"status\": \"denied\"}\n```"
	payload, ok := ExtractJSON([]byte(raw))
	require.True(t, ok)
	assert.JSONEq(t, `{"status": "denied"}`, string(payload))
}

func TestRecordAccessors(t *testing.T) {
	t.Parallel()

	rec := Record{
		"record_id":        "CLM-001",
		"_delta":           "updated",
		"_changed_fields":  []any{"status", "balance"},
		"balance":          float64(0),
		"appeal_reference": nil,
	}

	assert.Equal(t, "CLM-001", rec.ID())
	assert.Equal(t, "updated", rec.Delta())
	assert.Equal(t, []string{"status", "balance"}, rec.ChangedFields())
	assert.True(t, rec.Has("balance"))
	assert.False(t, rec.Has("appeal_reference"))
	assert.False(t, rec.Has("missing"))

	balance, ok := rec.Number("balance")
	require.True(t, ok)
	assert.Zero(t, balance)
	_, ok = rec.Number("record_id")
	assert.False(t, ok)
}

func TestParseTimestampFormats(t *testing.T) {
	t.Parallel()

	for _, value := range []string{
		"2025-02-15T09:00:00Z",
		"2025-02-15T09:00:00",
		"2025-02-15T09:00:00.000",
		"2025-02-15",
	} {
		ts, err := ParseTimestamp(value)
		require.NoError(t, err, value)
		assert.Equal(t, 2025, ts.Year(), value)
	}

	_, err := ParseTimestamp("Feb 15 2025")
	require.Error(t, err)
	assert.Contains(t, fmt.Sprint(err), "unrecognized timestamp")
}
