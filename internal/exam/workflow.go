package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// instanceState is where a user stands in the lazy instantiation machine.
// The only transition is none -> growing, taken on the first answer.
type instanceState int

const (
	stateNone instanceState = iota
	stateGrowing
)

func (s instanceState) String() string {
	if s == stateGrowing {
		return "growing"
	}
	return "none"
}

// instantiation keeps each user's single personal exam in step with the
// tasks they answer. It must run inside the same transaction as the answer.
type instantiation struct {
	repo  Repo
	newID func() string
	now   func() time.Time
	log   *zap.Logger
}

func (w instantiation) state(ctx context.Context, userID string) (instanceState, Instance, error) {
	in, err := w.repo.InstanceOf(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return stateNone, Instance{}, nil
	case err != nil:
		return stateNone, Instance{}, err
	}
	return stateGrowing, in, nil
}

// apply records that userID answered taskID and returns the user's instance.
func (w instantiation) apply(ctx context.Context, userID, taskID string) (Instance, error) {
	st, in, err := w.state(ctx, userID)
	if err != nil {
		return Instance{}, err
	}
	switch st {
	case stateNone:
		return w.fork(ctx, userID, taskID)
	default:
		return w.attach(ctx, in, taskID)
	}
}

func (w instantiation) fork(ctx context.Context, userID, taskID string) (Instance, error) {
	tpl, err := w.repo.FirstTemplateWithTask(ctx, taskID)
	if errors.Is(err, ErrNotFound) {
		return Instance{}, fmt.Errorf("%w: task %s belongs to no template", ErrInconsistent, taskID)
	}
	if err != nil {
		return Instance{}, err
	}
	in := Fork(tpl, w.newID(), userID, w.now())
	if !hasTask(in.SheetHeader, taskID) {
		in.TaskIDs = append(in.TaskIDs, taskID)
	}
	created, err := w.repo.InsertInstanceIfAbsent(ctx, in)
	if err != nil {
		return Instance{}, err
	}
	if !created {
		// another request forked first; join its instance
		existing, err := w.repo.InstanceOf(ctx, userID)
		if err != nil {
			return Instance{}, err
		}
		return w.attach(ctx, existing, taskID)
	}
	w.log.Info("personal exam forked",
		zap.String("user", userID),
		zap.String("template", tpl.ID),
		zap.String("instance", in.ID),
		zap.Int("tasks", len(in.TaskIDs)))
	return in, nil
}

func (w instantiation) attach(ctx context.Context, in Instance, taskID string) (Instance, error) {
	if hasTask(in.SheetHeader, taskID) {
		return in, nil
	}
	if err := w.repo.LinkTask(ctx, in.ID, taskID); err != nil {
		return Instance{}, err
	}
	in.TaskIDs = append(in.TaskIDs, taskID)
	w.log.Debug("task attached to personal exam",
		zap.String("user", in.CreatorID),
		zap.String("instance", in.ID),
		zap.String("task", taskID))
	return in, nil
}
