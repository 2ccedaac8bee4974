package repository

import (
	"math/rand/v2"
	"sync"
	"time"
)

// pushChars sorts in ASCII order, so IDs compare like their timestamps.
const pushChars = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

// pushIDs generates 20 character keys: 8 characters of millisecond
// timestamp followed by 12 random characters. IDs minted within the same
// millisecond increment the random tail so they stay strictly increasing.
type pushIDs struct {
	mu       sync.Mutex
	lastTime int64
	lastRand [12]int
}

func newPushIDs() *pushIDs {
	return &pushIDs{}
}

func (p *pushIDs) next(now time.Time) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ms := now.UnixMilli()
	if ms < p.lastTime {
		ms = p.lastTime
	}
	dup := ms == p.lastTime
	p.lastTime = ms

	var id [20]byte
	for i := 7; i >= 0; i-- {
		id[i] = pushChars[ms%64]
		ms /= 64
	}

	if !dup {
		for i := range p.lastRand {
			p.lastRand[i] = rand.IntN(64)
		}
	} else {
		i := len(p.lastRand) - 1
		for ; i >= 0 && p.lastRand[i] == 63; i-- {
			p.lastRand[i] = 0
		}
		if i >= 0 {
			p.lastRand[i]++
		}
	}
	for i, r := range p.lastRand {
		id[8+i] = pushChars[r]
	}
	return string(id[:])
}
