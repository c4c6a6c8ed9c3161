package control

import (
	"context"
	"testing"

	"streamcast/internal/manifest"
	"streamcast/internal/models"
	"streamcast/internal/wowza"
)

func TestStartTransmissionProvisionsAndActivates(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.orch.StartTransmission(context.Background(), StartTransmissionParams{
		OwnerID:    testOwner,
		Title:      "Morning show",
		PlaylistID: "pl-1",
	})
	if err != nil {
		t.Fatalf("StartTransmission: %v", err)
	}
	if res.Transmission.Status != models.TransmissionActive {
		t.Fatalf("unexpected status %q", res.Transmission.Status)
	}
	if res.Transmission.Kind != models.TransmissionKindPlaylist {
		t.Fatalf("unexpected kind %q", res.Transmission.Kind)
	}
	if res.ManifestName != manifest.DefaultName || res.ItemCount != 4 {
		t.Fatalf("unexpected manifest result %+v", res)
	}
	if res.Warning != "" {
		t.Fatalf("unexpected warning %q", res.Warning)
	}
	if env.provisioner.calls != 1 {
		t.Fatalf("expected one provision call, got %d", env.provisioner.calls)
	}
	if env.channel.activations != 1 {
		t.Fatalf("expected one activation, got %d", env.channel.activations)
	}
}

func TestStartTransmissionSupersedesActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first, err := env.orch.StartTransmission(ctx, StartTransmissionParams{
		OwnerID: testOwner, Title: "First", PlaylistID: "pl-1",
	})
	if err != nil {
		t.Fatalf("start first: %v", err)
	}
	second, err := env.orch.StartTransmission(ctx, StartTransmissionParams{
		OwnerID: testOwner, Title: "Second", PlaylistID: "pl-1",
	})
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	if second.Superseded == nil || *second.Superseded != first.Transmission.ID {
		t.Fatalf("expected supersede of %s, got %+v", first.Transmission.ID, second.Superseded)
	}
	old, _, err := env.repo.GetTransmission(ctx, first.Transmission.ID)
	if err != nil {
		t.Fatalf("GetTransmission: %v", err)
	}
	if old.Status != models.TransmissionFinished || old.EndedAt == nil {
		t.Fatalf("superseded transmission not finalized: %+v", old)
	}
	active, ok, err := env.repo.ActiveTransmission(ctx, testOwner)
	if err != nil || !ok {
		t.Fatalf("ActiveTransmission: ok=%v err=%v", ok, err)
	}
	if active.ID != second.Transmission.ID {
		t.Fatalf("expected %s active, got %s", second.Transmission.ID, active.ID)
	}
}

func TestStartTransmissionManifestFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.provisioner.err = manifest.ErrUnreachable
	ctx := context.Background()
	_, err := env.orch.StartTransmission(ctx, StartTransmissionParams{
		OwnerID: testOwner, Title: "Doomed", PlaylistID: "pl-1",
	})
	wantKind(t, err, KindRemote)
	if _, ok, _ := env.repo.ActiveTransmission(ctx, testOwner); ok {
		t.Fatal("no transmission should remain active after manifest failure")
	}
	if env.channel.activations != 0 {
		t.Fatal("channel must not be activated after manifest failure")
	}
}

func TestStartTransmissionActivationFailureIsWarning(t *testing.T) {
	env := newTestEnv(t)
	env.channel.activateErr = wowza.ErrUnreachable
	ctx := context.Background()
	res, err := env.orch.StartTransmission(ctx, StartTransmissionParams{
		OwnerID: testOwner, Title: "Unconfirmed", PlaylistID: "pl-1",
	})
	if err != nil {
		t.Fatalf("StartTransmission: %v", err)
	}
	if res.Warning == "" {
		t.Fatal("expected an activation warning")
	}
	if _, ok, _ := env.repo.ActiveTransmission(ctx, testOwner); !ok {
		t.Fatal("transmission should stay active despite unconfirmed activation")
	}
}

func TestStartTransmissionAlreadyRunningSkipsActivation(t *testing.T) {
	env := newTestEnv(t)
	env.channel.running = true
	res, err := env.orch.StartTransmission(context.Background(), StartTransmissionParams{
		OwnerID: testOwner, Title: "Show", PlaylistID: "pl-1",
	})
	if err != nil {
		t.Fatalf("StartTransmission: %v", err)
	}
	if res.Warning != "" {
		t.Fatalf("unexpected warning %q", res.Warning)
	}
	if env.channel.activations != 0 {
		t.Fatalf("running channel must not be reactivated, got %d activations", env.channel.activations)
	}
}

func TestStartTransmissionStateProbeFailureIsWarning(t *testing.T) {
	env := newTestEnv(t)
	env.channel.isRunningErr = wowza.ErrUnreachable
	res, err := env.orch.StartTransmission(context.Background(), StartTransmissionParams{
		OwnerID: testOwner, Title: "Show", PlaylistID: "pl-1",
	})
	if err != nil {
		t.Fatalf("StartTransmission: %v", err)
	}
	if res.Warning == "" {
		t.Fatal("expected a warning when the channel state cannot be read")
	}
	if env.channel.activations != 0 {
		t.Fatalf("activation should be skipped when the state probe fails, got %d", env.channel.activations)
	}
}

func TestStartTransmissionExternalSkipsManifest(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.orch.StartTransmission(context.Background(), StartTransmissionParams{
		OwnerID: testOwner, Title: "Encoder feed",
	})
	if err != nil {
		t.Fatalf("StartTransmission: %v", err)
	}
	if res.Transmission.Kind != models.TransmissionKindExternal {
		t.Fatalf("unexpected kind %q", res.Transmission.Kind)
	}
	if env.provisioner.calls != 0 {
		t.Fatalf("external transmission must not provision, got %d calls", env.provisioner.calls)
	}
}

func TestStartTransmissionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cases := []struct {
		name   string
		params StartTransmissionParams
		kind   Kind
	}{
		{"missing title", StartTransmissionParams{OwnerID: testOwner, PlaylistID: "pl-1"}, KindValidation},
		{"playlist kind without playlist", StartTransmissionParams{OwnerID: testOwner, Title: "x", Kind: models.TransmissionKindPlaylist}, KindValidation},
		{"unknown playlist", StartTransmissionParams{OwnerID: testOwner, Title: "x", PlaylistID: "pl-missing"}, KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.orch.StartTransmission(ctx, tc.params)
			wantKind(t, err, tc.kind)
		})
	}
}

func TestStartTransmissionForeignPlaylistReportsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.repo.UpsertPlaylist(ctx, models.Playlist{
		ID: "pl-other", OwnerID: "owner-2", Name: "Theirs", ItemCount: 3,
	}); err != nil {
		t.Fatalf("UpsertPlaylist: %v", err)
	}
	_, err := env.orch.StartTransmission(ctx, StartTransmissionParams{
		OwnerID: testOwner, Title: "Steal", PlaylistID: "pl-other",
	})
	wantKind(t, err, KindNotFound)
}

func TestStopTransmissionFinalizesAndLeavesChannelRunning(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	started, err := env.orch.StartTransmission(ctx, StartTransmissionParams{
		OwnerID: testOwner, Title: "Show", PlaylistID: "pl-1",
	})
	if err != nil {
		t.Fatalf("StartTransmission: %v", err)
	}
	res, err := env.orch.StopTransmission(ctx, testOwner, started.Transmission.ID)
	if err != nil {
		t.Fatalf("StopTransmission: %v", err)
	}
	if res.Transmission.Status != models.TransmissionFinished || res.Transmission.EndedAt == nil {
		t.Fatalf("transmission not finalized: %+v", res.Transmission)
	}
	if env.channel.deactivations != 0 {
		t.Fatalf("stop must leave the channel running, got %d deactivations", env.channel.deactivations)
	}
	if !env.channel.running {
		t.Fatal("channel should stay running after stop")
	}
}

func TestStopTransmissionSucceedsWithDeadServer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	started, err := env.orch.StartTransmission(ctx, StartTransmissionParams{
		OwnerID: testOwner, Title: "Show", PlaylistID: "pl-1",
	})
	if err != nil {
		t.Fatalf("StartTransmission: %v", err)
	}
	env.channel.deactivateErr = wowza.ErrUnreachable
	res, err := env.orch.StopTransmission(ctx, testOwner, started.Transmission.ID)
	if err != nil {
		t.Fatalf("StopTransmission: %v", err)
	}
	if res.Transmission.Status != models.TransmissionFinished {
		t.Fatalf("transmission not finalized: %+v", res.Transmission)
	}
}

func TestStopTransmissionTwiceIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	started, err := env.orch.StartTransmission(ctx, StartTransmissionParams{
		OwnerID: testOwner, Title: "Show", PlaylistID: "pl-1",
	})
	if err != nil {
		t.Fatalf("StartTransmission: %v", err)
	}
	if _, err := env.orch.StopTransmission(ctx, testOwner, started.Transmission.ID); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	res, err := env.orch.StopTransmission(ctx, testOwner, started.Transmission.ID)
	if err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if !res.AlreadyFinished {
		t.Fatal("second stop should report already finished")
	}
	if env.channel.deactivations != 0 {
		t.Fatalf("stop must not touch the channel, got %d deactivations", env.channel.deactivations)
	}
}

func TestStopTransmissionForeignOwnerReportsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.repo.UpsertEndpoint(ctx, models.StreamEndpoint{
		OwnerID: "owner-2", Login: "beta", ServerHost: "edge.example.com",
	}); err != nil {
		t.Fatalf("UpsertEndpoint: %v", err)
	}
	started, err := env.orch.StartTransmission(ctx, StartTransmissionParams{
		OwnerID: testOwner, Title: "Show", PlaylistID: "pl-1",
	})
	if err != nil {
		t.Fatalf("StartTransmission: %v", err)
	}
	_, foreignErr := env.orch.StopTransmission(ctx, "owner-2", started.Transmission.ID)
	wantKind(t, foreignErr, KindNotFound)

	// A foreign transmission must be indistinguishable from a missing one.
	_, missingErr := env.orch.StopTransmission(ctx, "owner-2", "tx-missing")
	wantKind(t, missingErr, KindNotFound)
}

func TestReloadScheduleReprovisions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.orch.StartTransmission(ctx, StartTransmissionParams{
		OwnerID: testOwner, Title: "Show", PlaylistID: "pl-1",
	}); err != nil {
		t.Fatalf("StartTransmission: %v", err)
	}
	env.provisioner.result.ItemCount = 7
	res, err := env.orch.ReloadSchedule(ctx, testOwner)
	if err != nil {
		t.Fatalf("ReloadSchedule: %v", err)
	}
	if res.ItemCount != 7 {
		t.Fatalf("expected refreshed item count, got %d", res.ItemCount)
	}
	if env.provisioner.calls != 2 {
		t.Fatalf("expected two provision calls, got %d", env.provisioner.calls)
	}
}

func TestReloadScheduleWithoutActiveTransmission(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.orch.ReloadSchedule(context.Background(), testOwner)
	wantKind(t, err, KindNotFound)
}

func TestReloadScheduleExternalTransmissionRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.orch.StartTransmission(ctx, StartTransmissionParams{
		OwnerID: testOwner, Title: "Encoder feed",
	}); err != nil {
		t.Fatalf("StartTransmission: %v", err)
	}
	_, err := env.orch.ReloadSchedule(ctx, testOwner)
	wantKind(t, err, KindValidation)
}
