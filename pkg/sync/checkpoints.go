package sync

import (
	"context"
	"fmt"

	"github.com/trailtime/core/pkg/activity"
	"github.com/trailtime/core/pkg/notify"
	"github.com/trailtime/core/pkg/store"
)

// Initial-sync recalculation checkpoints, tracked on the cursor so each
// fires at most once (spec §4.10 step 10): the first rebuild happens at
// 5 split-synced activities, then at 30% and 60% of the total synced so
// far. 100 marks "initial sync finished, final rebuild done".
const (
	checkpointFirst     = 5
	checkpointThirtyPct = 30
	checkpointSixtyPct  = 60
	checkpointDone      = 100
)

// runCheckpoints decides whether this pass earned a profile rebuild and
// runs it. During the initial sync the decision is cursor-checkpoint
// based; afterwards a simple new-activity counter accumulates until it
// reaches PostSyncRecalcMinNewActivities. Only the profile kinds whose
// activity types appeared in this batch are rebuilt.
func (p *Pipeline) runCheckpoints(ctx context.Context, userID string, cursor *store.SyncCursor, batch []activity.Activity, result *Result) error {
	hikingInBatch, runningInBatch := batchKinds(batch)

	if !cursor.InitialSyncComplete {
		checkpoint, due := p.dueInitialCheckpoint(cursor)
		if !due {
			return nil
		}
		cursor.LastRecalcCheckpoint = checkpoint
		return p.rebuildProfiles(ctx, userID, hikingInBatch, runningInBatch, result)
	}

	cursor.NewActivitiesSinceRecalc += result.SplitsSynced
	if cursor.NewActivitiesSinceRecalc < PostSyncRecalcMinNewActivities {
		return nil
	}
	cursor.NewActivitiesSinceRecalc = 0
	return p.rebuildProfiles(ctx, userID, hikingInBatch, runningInBatch, result)
}

// dueInitialCheckpoint reports the next unfired checkpoint the cursor
// has reached, if any. The total synced so far stands in for the
// provider's unknown full history size when computing percentages.
func (p *Pipeline) dueInitialCheckpoint(cursor *store.SyncCursor) (int, bool) {
	if cursor.LastRecalcCheckpoint < checkpointFirst {
		if cursor.ActivitiesWithSplits >= checkpointFirst {
			return checkpointFirst, true
		}
		return 0, false
	}

	if cursor.TotalActivitiesSynced == 0 {
		return 0, false
	}
	pct := cursor.ActivitiesWithSplits * 100 / cursor.TotalActivitiesSynced

	if cursor.LastRecalcCheckpoint < checkpointThirtyPct && pct >= checkpointThirtyPct {
		return checkpointThirtyPct, true
	}
	if cursor.LastRecalcCheckpoint < checkpointSixtyPct && pct >= checkpointSixtyPct {
		return checkpointSixtyPct, true
	}
	return 0, false
}

func batchKinds(batch []activity.Activity) (hiking, running bool) {
	for _, a := range batch {
		if a.Type.IsHiking() {
			hiking = true
		}
		if a.Type.IsRunning() {
			running = true
		}
	}
	return hiking, running
}

// rebuildProfiles reloads the user's full activity set and rebuilds the
// requested profile kinds, storing the results and notifying the user.
// A kind with no matching activities yet produces profile_incomplete
// instead of an empty table write.
func (p *Pipeline) rebuildProfiles(ctx context.Context, userID string, rebuildHiking, rebuildRunning bool, result *Result) error {
	if !rebuildHiking && !rebuildRunning {
		return nil
	}

	all, err := p.Store.ListActivities(ctx, userID)
	if err != nil {
		return fmt.Errorf("sync: list activities for rebuild: %w", err)
	}

	var hikes, runs []activity.Activity
	for _, a := range all {
		switch {
		case a.Type.IsHiking():
			hikes = append(hikes, a)
		case a.Type.IsRunning():
			runs = append(runs, a)
		}
	}

	rebuilt := false
	if rebuildHiking && len(hikes) > 0 {
		hp := p.Builder.RebuildHiking(userID, hikes)
		if err := p.Store.UpsertHikingProfile(ctx, hp); err != nil {
			return fmt.Errorf("sync: upsert hiking profile: %w", err)
		}
		result.RecalculatedHiking = true
		rebuilt = true
	}
	if rebuildRunning && len(runs) > 0 {
		rp := p.Builder.RebuildRunning(userID, runs)
		if err := p.Store.UpsertRunProfile(ctx, rp); err != nil {
			return fmt.Errorf("sync: upsert run profile: %w", err)
		}
		result.RecalculatedRunning = true
		rebuilt = true
	}

	kind := notify.KindProfileUpdated
	if !rebuilt {
		kind = notify.KindProfileIncomplete
	}
	p.notify(ctx, userID, kind, nil)
	return nil
}
