package ledger

import (
	"context"
	"sync"

	"nft-escrow-market/internal/pubkey"
)

// lockTable hands out per-account exclusive locks. Entries are created on
// demand and dropped when no transaction holds or waits for them.
type lockTable struct {
	lk    sync.Mutex
	locks map[pubkey.PublicKey]*accountLock
}

type accountLock struct {
	ch   chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[pubkey.PublicKey]*accountLock)}
}

// acquire locks keys in the given order, which must be sorted and free of
// duplicates so that concurrent callers cannot deadlock. The returned
// release function unlocks everything acquired.
func (t *lockTable) acquire(ctx context.Context, keys []pubkey.PublicKey) (func(), error) {
	done := func() {}

	for _, key := range keys {
		l := t.ref(key)

		select {
		case l.ch <- struct{}{}:
		case <-ctx.Done():
			t.unref(key)
			done()
			return nil, ctx.Err()
		}

		prevDone := done
		k := key
		done = func() {
			<-l.ch
			t.unref(k)
			prevDone()
		}
	}

	return done, nil
}

func (t *lockTable) ref(key pubkey.PublicKey) *accountLock {
	t.lk.Lock()
	defer t.lk.Unlock()

	l, found := t.locks[key]
	if !found {
		l = &accountLock{ch: make(chan struct{}, 1)}
		t.locks[key] = l
	}
	l.refs++
	return l
}

func (t *lockTable) unref(key pubkey.PublicKey) {
	t.lk.Lock()
	defer t.lk.Unlock()

	l := t.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(t.locks, key)
	}
}

func (t *lockTable) size() int {
	t.lk.Lock()
	defer t.lk.Unlock()
	return len(t.locks)
}
