package rtdb

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"
)

// pushChars is ordered by ASCII value so generated keys sort by time.
const pushChars = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

// PushIDGenerator produces 20 character keys: 8 characters of millisecond
// timestamp followed by 12 random characters. Keys generated within the same
// millisecond increment the random part, so keys from one generator are
// strictly increasing.
type PushIDGenerator struct {
	mu       sync.Mutex
	now      func() time.Time
	lastTime int64
	lastRand [12]int
}

// NewPushIDGenerator returns a generator that reads the time from now.
func NewPushIDGenerator(now func() time.Time) *PushIDGenerator {
	return &PushIDGenerator{now: now}
}

var defaultPushIDs = NewPushIDGenerator(time.Now)

// NextPushID returns a new key from the package generator.
func NextPushID() string {
	return defaultPushIDs.Next()
}

// Next returns a new key.
func (g *PushIDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := g.now().UnixNano() / int64(time.Millisecond)
	if ms == g.lastTime {
		for i := len(g.lastRand) - 1; i >= 0; i-- {
			if g.lastRand[i] != len(pushChars)-1 {
				g.lastRand[i]++
				break
			}
			g.lastRand[i] = 0
		}
	} else {
		for i := range g.lastRand {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(pushChars))))
			if err != nil {
				panic(err)
			}
			g.lastRand[i] = int(n.Int64())
		}
	}
	g.lastTime = ms

	var id [20]byte
	for i := 7; i >= 0; i-- {
		id[i] = pushChars[ms%int64(len(pushChars))]
		ms /= int64(len(pushChars))
	}
	for i, r := range g.lastRand {
		id[8+i] = pushChars[r]
	}
	return string(id[:])
}
