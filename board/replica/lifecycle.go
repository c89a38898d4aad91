// ABOUTME: Session lifecycle of a replica: Unjoined, Joining, Joined, Leaving.
// ABOUTME: Join validates the username, subscribes, announces itself and asks peers for state.
package replica

import (
	"context"
	"fmt"
	"log"

	"github.com/2389-research/retroboard/board/core"
)

// Phase is where a replica is in its session lifecycle.
type Phase int

const (
	PhaseUnjoined Phase = iota
	PhaseJoining
	PhaseJoined
	PhaseLeaving
)

func (p Phase) String() string {
	switch p {
	case PhaseUnjoined:
		return "unjoined"
	case PhaseJoining:
		return "joining"
	case PhaseJoined:
		return "joined"
	case PhaseLeaving:
		return "leaving"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Join validates username against the current participants and starts a
// session. Validation failures are the core.ErrUsername* errors and leave
// the replica unjoined with nothing published.
func (r *Replica) Join(ctx context.Context, username string) error {
	var err error
	if doErr := r.do(ctx, func() { err = r.join(username, true) }); doErr != nil {
		return doErr
	}
	return err
}

// Resume rejoins with the username persisted by an earlier session. The
// stored name may still be listed as active from that session, so it is not
// checked for being taken.
func (r *Replica) Resume(ctx context.Context) error {
	var err error
	doErr := r.do(ctx, func() {
		if r.storedName == "" {
			err = ErrNoStoredUsername
			return
		}
		err = r.join(r.storedName, false)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// StoredUsername is the username persisted by an earlier session, if any.
func (r *Replica) StoredUsername(ctx context.Context) (string, error) {
	var name string
	err := r.do(ctx, func() { name = r.storedName })
	return name, err
}

// Leave ends the session and forgets the stored username. Leaving while
// unjoined is a no-op.
func (r *Replica) Leave(ctx context.Context) error {
	return r.do(ctx, func() { r.leave(true) })
}

func (r *Replica) join(candidate string, checkTaken bool) error {
	if r.phase != PhaseUnjoined {
		return ErrAlreadyJoined
	}
	var active []string
	if checkTaken {
		active = r.store.State().ActiveUsers
	}
	name, err := core.ValidateUsername(candidate, active)
	if err != nil {
		return err
	}

	r.phase = PhaseJoining
	r.username = name
	sub, err := r.endpoint.Subscribe(r.receive)
	if err != nil {
		r.phase = PhaseUnjoined
		r.username = ""
		return fmt.Errorf("subscribe: %w", err)
	}
	r.sub = sub

	r.store.AddUser(name)
	r.publish(core.UserJoinedPayload{Username: name})
	r.publish(core.FullStateSyncPayload{})

	r.storedName = name
	r.saveUsername(name)
	r.phase = PhaseJoined
	log.Printf("component=board.replica action=joined user=%s", name)
	r.changed()
	return nil
}

// leave announces departure and unsubscribes. forget clears the stored
// username (explicit logout) rather than keeping it for Resume.
func (r *Replica) leave(forget bool) {
	if r.phase != PhaseJoined {
		return
	}
	r.phase = PhaseLeaving
	name := r.username

	r.stopAllStopwatches()
	r.publish(core.UserLeftPayload{Username: name})
	r.store.RemoveUser(name)
	if r.sub != nil {
		r.sub.Unsubscribe()
		r.sub = nil
	}

	if forget {
		r.storedName = ""
		r.saveUsername("")
	}
	r.username = ""
	r.phase = PhaseUnjoined
	log.Printf("component=board.replica action=left user=%s forget=%v", name, forget)
	r.changed()
}
