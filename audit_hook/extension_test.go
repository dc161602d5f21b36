package audithook

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/paychan/channel"
	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/session"
	"github.com/xraph/paychan/settlement"
	"github.com/xraph/paychan/types"
)

type capturingRecorder struct {
	events []*AuditEvent
}

func (r *capturingRecorder) Record(_ context.Context, event *AuditEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *capturingRecorder) last(t *testing.T) *AuditEvent {
	t.Helper()
	if len(r.events) == 0 {
		t.Fatal("no audit event recorded")
	}
	return r.events[len(r.events)-1]
}

func TestChannelHooksRecord(t *testing.T) {
	rec := &capturingRecorder{}
	ext := New(rec)
	ctx := context.Background()

	ch := &channel.Channel{
		Entity: types.NewEntity(),
		ID:     id.NewChannelID(),
		State:  channel.StateDraft,
	}

	if err := ext.OnChannelCreated(ctx, ch); err != nil {
		t.Fatal(err)
	}

	ev := rec.last(t)
	if ev.Action != ActionChannelCreated {
		t.Errorf("action = %s, want %s", ev.Action, ActionChannelCreated)
	}
	if ev.Resource != ResourceChannel {
		t.Errorf("resource = %s, want %s", ev.Resource, ResourceChannel)
	}
	if ev.ResourceID != ch.ID.String() {
		t.Errorf("resource id = %s, want %s", ev.ResourceID, ch.ID)
	}
	if ev.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %s, want %s", ev.Outcome, OutcomeSuccess)
	}
}

func TestDisputeRecordsBothFigures(t *testing.T) {
	rec := &capturingRecorder{}
	ext := New(rec)

	ch := &channel.Channel{Entity: types.NewEntity(), ID: id.NewChannelID()}
	if err := ext.OnChannelDisputed(context.Background(), ch, types.Drops(25), types.Drops(40)); err != nil {
		t.Fatal(err)
	}

	ev := rec.last(t)
	if ev.Severity != SeverityCritical {
		t.Errorf("severity = %s, want critical", ev.Severity)
	}
	if ev.Metadata["local_amount"] == "" || ev.Metadata["onchain_amount"] == "" {
		t.Errorf("metadata missing dispute figures: %v", ev.Metadata)
	}
}

func TestClaimFailedCarriesReason(t *testing.T) {
	rec := &capturingRecorder{}
	ext := New(rec)

	claim := &settlement.ClaimRequest{Entity: types.NewEntity(), ID: id.NewClaimID()}
	cause := errors.New("signature refused")
	if err := ext.OnClaimFailed(context.Background(), claim, cause); err != nil {
		t.Fatal(err)
	}

	ev := rec.last(t)
	if ev.Action != ActionClaimFailed {
		t.Errorf("action = %s, want %s", ev.Action, ActionClaimFailed)
	}
	if ev.Outcome != OutcomeFailure {
		t.Errorf("outcome = %s, want failure", ev.Outcome)
	}
	if ev.Reason != cause.Error() {
		t.Errorf("reason = %q, want %q", ev.Reason, cause.Error())
	}
}

func TestActionFiltering(t *testing.T) {
	rec := &capturingRecorder{}
	ext := New(rec, WithEnabledActions(ActionSessionClosed))

	sess := &session.WorkSession{Entity: types.NewEntity(), ID: id.NewSessionID()}
	ctx := context.Background()

	if err := ext.OnSessionClockedIn(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("disabled action recorded: %v", rec.events)
	}

	if err := ext.OnSessionClosed(ctx, sess, types.Drops(10)); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 1 {
		t.Fatalf("enabled action not recorded, events = %d", len(rec.events))
	}
}

func TestDisabledActions(t *testing.T) {
	rec := &capturingRecorder{}
	ext := New(rec, WithDisabledActions(ActionChannelCreated))

	ch := &channel.Channel{Entity: types.NewEntity(), ID: id.NewChannelID()}
	ctx := context.Background()

	if err := ext.OnChannelCreated(ctx, ch); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 0 {
		t.Fatal("disabled action recorded")
	}

	if err := ext.OnChannelFunded(ctx, ch); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 1 {
		t.Fatal("remaining actions should still record")
	}
}
