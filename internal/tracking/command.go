package tracking

import (
	"fmt"
	"time"

	"trackhub/internal/model"
	"trackhub/internal/progress"
	"trackhub/internal/tree"
)

// command is a local tree mutation that carries its own inverse. Apply
// captures whatever Revert needs.
type command interface {
	Apply(tx *tree.Tx) error
	Revert(tx *tree.Tx) error
	Description() string
}

type toggleFeatureCmd struct {
	featureID string
	completed bool
	at        time.Time

	prev model.Feature
	seq  uint64
}

func (c *toggleFeatureCmd) Apply(tx *tree.Tx) error {
	f, ok := tx.Feature(c.featureID)
	if !ok {
		return fmt.Errorf("feature %s: %w", c.featureID, ErrNodeNotFound)
	}
	c.prev = f

	f.IsCompleted = c.completed
	if c.completed {
		at := c.at
		f.CompletedAt = &at
	} else {
		f.CompletedAt = nil
	}
	f.Status = progress.FeatureStatus(f)
	tx.SetFeature(f)
	return nil
}

func (c *toggleFeatureCmd) Revert(tx *tree.Tx) error {
	f, ok := tx.Feature(c.featureID)
	if !ok {
		return fmt.Errorf("feature %s: %w", c.featureID, ErrNodeNotFound)
	}
	f.IsCompleted = c.prev.IsCompleted
	f.CompletedAt = c.prev.CompletedAt
	f.Status = progress.FeatureStatus(f)
	tx.SetFeature(f)
	return nil
}

func (c *toggleFeatureCmd) Description() string {
	if c.completed {
		return fmt.Sprintf("complete feature %s", c.featureID)
	}
	return fmt.Sprintf("reopen feature %s", c.featureID)
}

type setBlockedCmd struct {
	kind    model.NodeKind
	id      string
	blocked bool

	prev bool
	seq  uint64
}

func (c *setBlockedCmd) key() string {
	return "blocked:" + c.kind.String() + ":" + c.id
}

func (c *setBlockedCmd) Apply(tx *tree.Tx) error {
	prev, err := c.swap(tx, c.blocked)
	if err != nil {
		return err
	}
	c.prev = prev
	return nil
}

func (c *setBlockedCmd) Revert(tx *tree.Tx) error {
	_, err := c.swap(tx, c.prev)
	return err
}

func (c *setBlockedCmd) swap(tx *tree.Tx, blocked bool) (bool, error) {
	switch c.kind {
	case model.KindFeature:
		f, ok := tx.Feature(c.id)
		if !ok {
			break
		}
		prev := f.Blocked
		f.Blocked = blocked
		f.Status = progress.FeatureStatus(f)
		tx.SetFeature(f)
		return prev, nil
	case model.KindModule:
		m, ok := tx.Module(c.id)
		if !ok {
			break
		}
		prev := m.Blocked
		m.Blocked = blocked
		m.Status = progress.DeriveStatus(m.Progress, m.Blocked)
		tx.SetModule(m)
		return prev, nil
	case model.KindMilestone:
		ms, ok := tx.Milestone(c.id)
		if !ok {
			break
		}
		prev := ms.Blocked
		ms.Blocked = blocked
		ms.Status = progress.DeriveStatus(ms.Progress, ms.Blocked)
		tx.SetMilestone(ms)
		return prev, nil
	default:
		return false, fmt.Errorf("unsupported node kind %d", c.kind)
	}
	return false, fmt.Errorf("%s %s: %w", c.kind, c.id, ErrNodeNotFound)
}

func (c *setBlockedCmd) Description() string {
	if c.blocked {
		return fmt.Sprintf("block %s %s", c.kind, c.id)
	}
	return fmt.Sprintf("unblock %s %s", c.kind, c.id)
}
