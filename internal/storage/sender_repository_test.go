package storage

import (
	"errors"
	"testing"
	"time"
)

func TestSenderGetOrCreate(t *testing.T) {
	t.Parallel()
	repo := NewSenderRepository(newTestDB(t))

	created, err := repo.GetOrCreate(12345, "alice", "Alice", "A")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("created sender has no internal id")
	}
	if created.TelegramID != 12345 || created.Username != "alice" {
		t.Errorf("created %+v", created)
	}

	// Second contact reuses the row and refreshes profile fields.
	firstSeen := created.LastActiveAt
	time.Sleep(5 * time.Millisecond)
	again, err := repo.GetOrCreate(12345, "alice_renamed", "Alice", "A")
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if again.ID != created.ID {
		t.Errorf("second contact created a new row: id %d vs %d", again.ID, created.ID)
	}
	if again.Username != "alice_renamed" {
		t.Errorf("username not refreshed: %q", again.Username)
	}
	if !again.LastActiveAt.After(firstSeen) {
		t.Error("last-active timestamp not refreshed")
	}
}

func TestSenderLookups(t *testing.T) {
	t.Parallel()
	repo := NewSenderRepository(newTestDB(t))

	created, err := repo.GetOrCreate(12345, "alice", "Alice", "")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	byTG, err := repo.GetByTelegramID(12345)
	if err != nil || byTG.ID != created.ID {
		t.Errorf("GetByTelegramID = (%+v, %v)", byTG, err)
	}
	byID, err := repo.GetByID(created.ID)
	if err != nil || byID.TelegramID != 12345 {
		t.Errorf("GetByID = (%+v, %v)", byID, err)
	}

	if _, err := repo.GetByTelegramID(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown telegram id: err = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetByID(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown internal id: err = %v, want ErrNotFound", err)
	}
}

func TestSenderSetBanned(t *testing.T) {
	t.Parallel()
	repo := NewSenderRepository(newTestDB(t))

	if _, err := repo.GetOrCreate(12345, "alice", "Alice", ""); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	if err := repo.SetBanned(12345, true); err != nil {
		t.Fatalf("SetBanned: %v", err)
	}
	sender, err := repo.GetByTelegramID(12345)
	if err != nil || !sender.IsBanned {
		t.Errorf("after ban: sender=%+v err=%v", sender, err)
	}

	if err := repo.SetBanned(12345, false); err != nil {
		t.Fatalf("unban: %v", err)
	}
	sender, _ = repo.GetByTelegramID(12345)
	if sender.IsBanned {
		t.Error("sender still banned after unban")
	}

	if err := repo.SetBanned(999, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("banning unknown sender: err = %v, want ErrNotFound", err)
	}
}
