package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/clinic-manager/internal/model"
)

// ClaimSlot marks a free slot as booked.  The check and the write are one
// statement, so of two concurrent claims on the same slot exactly one wins;
// the loser gets ErrConflict.
func ClaimSlot(ctx context.Context, m *Model[model.Slot], actor, id uint64) error {
	return setBooked(ctx, m, actor, id, true)
}

// ReleaseSlot frees a booked slot.
func ReleaseSlot(ctx context.Context, m *Model[model.Slot], actor, id uint64) error {
	return setBooked(ctx, m, actor, id, false)
}

func setBooked(ctx context.Context, m *Model[model.Slot], actor, id uint64, booked bool) error {
	res, err := m.conn.DB().ExecContext(ctx,
		"UPDATE slots SET is_booked=?, updated_by=?, updated_at=? WHERE id=? AND is_booked=?",
		booked, actor, m.now().UTC().Truncate(time.Second), id, !booked)
	if err != nil {
		return m.translate("claim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return m.translate("claim", err)
	}
	if n == 0 {
		// either missing or already in the requested state
		if _, err := m.FindByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("slot %d: %w", id, ErrConflict)
	}
	return nil
}
