// Package eventloop drives the reconciler from the container host's lifecycle: an initial full scan
// followed by a strictly sequential dispatch of the filtered container event stream (§4.6).
package eventloop

import (
	"context"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"

	"github.com/redth/npm-docker-sync/internal/dockerhost"
	"github.com/redth/npm-docker-sync/internal/label"
)

// DockerAPI is the subset of the container host contract (§6) the event loop needs.
type DockerAPI interface {
	ListContainers(ctx context.Context) ([]container.Summary, error)
	InspectContainer(ctx context.Context, id string) (container.InspectResponse, error)
	Events(ctx context.Context) (<-chan events.Message, <-chan error)
}

// NetworkInspector is initialized once before the loop starts processing events (§4.2 step 1-2, §4.6
// step 1).
type NetworkInspector interface {
	Init(ctx context.Context) error
}

// Reconciler is the subset of *reconcile.Reconciler the event loop drives.
type Reconciler interface {
	RebuildHandles(ctx context.Context, liveContainerIDs map[string]bool)
	Reconcile(ctx context.Context, containerID, containerName string, labels map[string]string)
	ContainerGone(ctx context.Context, containerID string)
}

// Loop implements §4.6.
type Loop struct {
	docker     DockerAPI
	netInspect NetworkInspector
	reconciler Reconciler
}

// New creates a Loop.
func New(docker DockerAPI, netInspect NetworkInspector, reconciler Reconciler) *Loop {
	return &Loop{docker: docker, netInspect: netInspect, reconciler: reconciler}
}

// Run initializes the network inspector, performs the full initial scan, then processes the event stream
// strictly sequentially until ctx is cancelled (§4.6, §5 "event task: cooperatively single-threaded").
func (l *Loop) Run(ctx context.Context) error {
	if err := l.netInspect.Init(ctx); err != nil {
		return err
	}

	l.initialScan(ctx)

	eventCh, errCh := l.docker.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errCh:
			if !ok {
				return nil
			}
			if ctx.Err() == nil {
				slog.Error("Docker event stream error.", "error", err)
			}
		case msg, ok := <-eventCh:
			if !ok {
				return nil
			}
			l.dispatch(ctx, msg)
		}
	}
}

// initialScan lists every container, including stopped ones, rebuilds the reconciler's handle map from
// existing proxy-manager resources against that live set (§9 cold start), then reconciles any container
// whose labels carry the reserved namespace prefix (§4.6 step 2).
func (l *Loop) initialScan(ctx context.Context) {
	containers, err := l.docker.ListContainers(ctx)
	if err != nil {
		slog.Error("Initial container scan failed.", "error", err)
		return
	}

	live := make(map[string]bool, len(containers))
	for _, c := range containers {
		live[c.ID] = true
	}
	l.reconciler.RebuildHandles(ctx, live)

	for _, c := range containers {
		if !hasReservedLabel(c.Labels) {
			continue
		}
		name := dockerhost.PrimaryName(c.Names)
		l.reconciler.Reconcile(ctx, c.ID, name, c.Labels)
	}
}

// dispatch routes one container event to the reconciler per §4.6 step 3. Events are handled one at a time
// from Run's single goroutine, so no additional locking is needed here.
func (l *Loop) dispatch(ctx context.Context, msg events.Message) {
	if msg.Type != events.ContainerEventType {
		return
	}

	containerID := msg.Actor.ID

	switch msg.Action {
	case events.ActionStart, "update":
		info, err := l.docker.InspectContainer(ctx, containerID)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Inspect container for event failed.", "container_id", containerID, "error", err)
			}
			return
		}
		l.reconciler.Reconcile(ctx, containerID, dockerhost.ContainerName(info), info.Config.Labels)
	case events.ActionStop, events.ActionDie, events.ActionDestroy:
		l.reconciler.ContainerGone(ctx, containerID)
	default:
		// Ignored: only lifecycle transitions relevant to reconciliation are handled (§4.6 step 3).
	}
}

func hasReservedLabel(labels map[string]string) bool {
	for k := range labels {
		if strings.HasPrefix(k, label.Prefix+".") || strings.HasPrefix(k, label.Prefix+"-") {
			return true
		}
	}
	return false
}
