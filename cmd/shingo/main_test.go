package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"nyiyui.ca/hato/shingo/config"
	"nyiyui.ca/hato/shingo/tal"
	"nyiyui.ca/hato/shingo/tal/guide"
)

// blockedDriver fails the first n drives with err.
type blockedDriver struct {
	n     int
	err   error
	calls []guide.DriveRequest
}

func (b *blockedDriver) Drive(req guide.DriveRequest) (uuid.UUID, error) {
	b.calls = append(b.calls, req)
	if len(b.calls) <= b.n {
		return uuid.Nil, b.err
	}
	return uuid.New(), nil
}

func TestScheduleDriveRetries(t *testing.T) {
	noPath := fmt.Errorf("plan 1→4: %w", tal.ErrNoPath)
	for _, tc := range []struct {
		name    string
		blocked int
		err     error
		retries int
		calls   int
	}{
		{"first try", 0, noPath, 3, 1},
		{"route frees up", 2, noPath, 3, 3},
		{"gives up", 10, noPath, 3, 4},
		{"no retries", 10, noPath, 0, 1},
		{"other errors are final", 10, guide.ErrUnknownTrain, 3, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := &blockedDriver{n: tc.blocked, err: tc.err}
			d := config.DriveConfig{Train: 2, Goal: "4", Retries: tc.retries, RetryMs: 1}
			scheduleDrive(context.Background(), g, d, 4)
			want := make([]guide.DriveRequest, tc.calls)
			for i := range want {
				want[i] = guide.DriveRequest{Train: 2, Goal: 4}
			}
			if diff := cmp.Diff(want, g.calls); diff != "" {
				t.Fatalf("drives (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScheduleDriveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := &blockedDriver{err: errors.New("unreachable")}
	scheduleDrive(ctx, g, config.DriveConfig{Train: 2, Goal: "4", AfterMs: 60000}, 4)
	if len(g.calls) != 0 {
		t.Fatalf("drove after cancel: %v", g.calls)
	}
}
