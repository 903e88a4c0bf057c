package server

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingPruner struct {
	calls chan struct{}
	err   error
}

func (p *countingPruner) PruneInvitations(context.Context) (int, error) {
	select {
	case p.calls <- struct{}{}:
	default:
	}
	return 1, p.err
}

func TestStartInvitationSweep_RunsOnInterval(t *testing.T) {
	p := &countingPruner{calls: make(chan struct{}, 1)}
	sched, err := StartInvitationSweep(context.Background(), p, 20*time.Millisecond, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Shutdown()

	select {
	case <-p.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never ran")
	}
}

func TestStartInvitationSweep_SurvivesErrors(t *testing.T) {
	p := &countingPruner{calls: make(chan struct{}, 1), err: errors.New("store down")}
	sched, err := StartInvitationSweep(context.Background(), p, 20*time.Millisecond, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Shutdown()

	for i := 0; i < 2; i++ {
		select {
		case <-p.calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("sweep stopped after %d runs", i)
		}
	}
}

func TestStartInvitationSweep_RejectsBadInterval(t *testing.T) {
	p := &countingPruner{calls: make(chan struct{}, 1)}
	if _, err := StartInvitationSweep(context.Background(), p, 0, quietLogger()); err == nil {
		t.Error("expected an error for a zero interval")
	}
}
